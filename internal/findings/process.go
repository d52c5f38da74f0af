// Package findings deduplicates raw findings returned across extraction
// chunks and classifies each by impact severity.
package findings

import (
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// FieldLookup resolves a taxonomy field definition, or nil when the
// extracted key is not part of the configured taxonomy.
type FieldLookup func(categoryKey, fieldKey string) *model.TaxonomyField

// Process deduplicates and classifies the raw findings from all chunks.
// Every input finding is returned (for audit), labeled with its field's
// display label and classified impact; findings whose identity lost the
// dedup are flagged IsDuplicate so persistence skips them.
func Process(raw []model.RawFinding, lookup FieldLookup) []model.ProcessedFinding {
	if len(raw) == 0 {
		return nil
	}

	retained := dedupeIndex(raw)

	out := make([]model.ProcessedFinding, 0, len(raw))
	var duplicates int
	for i, f := range raw {
		key := identityKey(f.CategoryKey, f.FieldKey, NormalizeValue(f.Value))

		var field *model.TaxonomyField
		if lookup != nil {
			field = lookup(f.CategoryKey, f.FieldKey)
		}

		label := f.FieldKey
		if field != nil && field.Label != "" {
			label = field.Label
		}

		pf := model.ProcessedFinding{
			RawFinding:  f,
			Label:       label,
			Impact:      ClassifyImpact(f, field),
			IsDuplicate: retained[key] != i,
		}
		if pf.IsDuplicate {
			duplicates++
		}
		out = append(out, pf)
	}

	zap.L().Debug("findings: processed",
		zap.Int("raw", len(raw)),
		zap.Int("retained", len(retained)),
		zap.Int("duplicates", duplicates),
	)
	return out
}
