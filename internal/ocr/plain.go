package ocr

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Plain reads documents that are already text (exported e-mails, OCR
// sidecar files). Non-UTF-8 content is rejected.
type Plain struct{}

// NewPlain creates a Plain extractor.
func NewPlain() *Plain {
	return &Plain{}
}

// ExtractText returns the file content as text.
func (Plain) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failed(path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", failed(path, eris.Wrap(err, "read file"))
	}
	if !utf8.Valid(data) {
		return "", failed(path, eris.New("content is not UTF-8 text"))
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", failed(path, ErrNoText)
	}
	return string(data), nil
}
