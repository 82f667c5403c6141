package ocr

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// pdftotext exit statuses (poppler).
var pdftotextExit = map[int]string{
	1: "cannot open document",
	2: "cannot write output",
	3: "document is protected against copying",
}

// PdfToText extracts the text layer of a PDF with poppler's pdftotext.
// Scanned documents without a text layer fail with ErrNoText.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. An empty binPath looks up
// "pdftotext" on PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText implements Extractor. The layout is preserved so amounts keep
// their place on the line.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binPath, "-q", "-layout", "-enc", "UTF-8", pdfPath, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", failed(pdfPath, describeRunError(err, stderr.String()))
	}

	// form feeds separate pages
	text := strings.ReplaceAll(stdout.String(), "\f", "\n")
	if strings.TrimSpace(text) == "" {
		return "", failed(pdfPath, ErrNoText)
	}
	return text, nil
}

func describeRunError(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if reason, ok := pdftotextExit[exitErr.ExitCode()]; ok && detail == "" {
			detail = reason
		}
	}
	if detail == "" {
		return eris.Wrap(err, "pdftotext")
	}
	return eris.Wrapf(err, "pdftotext: %s", detail)
}
