package ocr

import (
	"bytes"
	"context"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// Native extracts PDF text in-process, with no external binary. Quality
// is lower than pdftotext on scanned or column-heavy documents.
type Native struct{}

// Text reads the PDF's embedded text layer.
func (n *Native) Text(_ context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open pdf %s", path)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", eris.Wrapf(err, "ocr: extract text %s", path)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", eris.Wrapf(err, "ocr: read text %s", path)
	}
	return buf.String(), nil
}

// NewProvider returns the provider named by config: "native" for the
// in-process reader, anything else for pdftotext at the given path.
func NewProvider(name, pdfToTextPath string) Provider {
	if name == "native" {
		return &Native{}
	}
	return &PdfToText{Path: pdfToTextPath}
}
