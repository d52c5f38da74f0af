package ocr

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts PDF text via the poppler pdftotext binary.
type PdfToText struct {
	// Path is the pdftotext executable ("pdftotext" when empty).
	Path string
}

// Text runs pdftotext in layout mode and returns stdout.
func (p *PdfToText) Text(ctx context.Context, path string) (string, error) {
	bin := p.Path
	if bin == "" {
		bin = "pdftotext"
	}

	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}
