package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	text string
	err  error
	path string
}

func (s *stubProvider) Text(_ context.Context, path string) (string, error) {
	s.path = path
	return s.text, s.err
}

func TestForDocument_PlainText(t *testing.T) {
	dir := t.TempDir()
	for _, ext := range []string{".txt", ".md"} {
		path := filepath.Join(dir, "doc"+ext)
		require.NoError(t, os.WriteFile(path, []byte("letter before action"), 0o644))

		text, err := ForDocument(context.Background(), nil, path)
		require.NoError(t, err)
		assert.Equal(t, "letter before action", text)
	}
}

func TestForDocument_PDFRoutesToProvider(t *testing.T) {
	stub := &stubProvider{text: "pdf contents"}

	text, err := ForDocument(context.Background(), stub, "/uploads/Claim.PDF")
	require.NoError(t, err)
	assert.Equal(t, "pdf contents", text)
	assert.Equal(t, "/uploads/Claim.PDF", stub.path)
}

func TestForDocument_PDFWithoutProvider(t *testing.T) {
	_, err := ForDocument(context.Background(), nil, "/uploads/claim.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pdf provider")
}

func TestForDocument_UnsupportedType(t *testing.T) {
	_, err := ForDocument(context.Background(), &stubProvider{}, "/uploads/scan.tiff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document type")
}

func TestForDocument_MissingFile(t *testing.T) {
	_, err := ForDocument(context.Background(), nil, filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	assert.IsType(t, &Native{}, NewProvider("native", ""))

	p := NewProvider("pdftotext", "/usr/bin/pdftotext")
	require.IsType(t, &PdfToText{}, p)
	assert.Equal(t, "/usr/bin/pdftotext", p.(*PdfToText).Path)
}
