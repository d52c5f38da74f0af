// Package extraction adapts the text-completion capability that performs
// classification and fact extraction. The pipeline consumes it as an
// opaque function returning labeled tuples per text chunk.
package extraction

import (
	"context"
	"strings"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// Extractor is the extraction capability consumed by the classify and
// extract stages. Implementations are unreliable and slow; callers must
// tolerate empty results and errors without corrupting findings already
// accumulated from other chunks.
type Extractor interface {
	// Extract returns the structured facts found in one text chunk.
	Extract(ctx context.Context, chunk string, tax TaxonomyContext) ([]model.RawFinding, error)
	// ClassifyDocument returns a document-type label for the full text.
	ClassifyDocument(ctx context.Context, text string) (string, error)
}

// TaxonomyContext carries the resolved field definitions the capability
// should extract against.
type TaxonomyContext struct {
	Fields []model.TaxonomyField
}

// Render formats the taxonomy for inclusion in an extraction prompt.
func (t TaxonomyContext) Render() string {
	if len(t.Fields) == 0 {
		return "(no fields configured)"
	}
	var b strings.Builder
	for _, f := range t.Fields {
		b.WriteString("- ")
		b.WriteString(f.CategoryKey)
		b.WriteString(".")
		b.WriteString(f.FieldKey)
		if f.Label != "" {
			b.WriteString(" (")
			b.WriteString(f.Label)
			b.WriteString(")")
		}
		if f.DataType != "" {
			b.WriteString(" [")
			b.WriteString(f.DataType)
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
