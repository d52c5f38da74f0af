// Package ocr extracts plain text from uploaded case documents for the
// ocr pipeline stage.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Provider extracts text from a document on disk.
type Provider interface {
	Text(ctx context.Context, path string) (string, error)
}

// ForDocument returns the text of a document, routing PDFs through the
// provider and reading plain-text formats directly.
func ForDocument(ctx context.Context, provider Provider, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read %s", path)
		}
		return string(data), nil
	case ".pdf":
		if provider == nil {
			return "", eris.New("ocr: no pdf provider configured")
		}
		return provider.Text(ctx, path)
	default:
		return "", eris.New("ocr: unsupported document type " + filepath.Ext(path))
	}
}
