// Package ocr extracts plain text from case documents.
package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/fold"
)

// ErrExtractionFailed marks any failure to obtain text from a document,
// including documents that decode fine but carry no text (scans).
var ErrExtractionFailed = eris.New("ocr: extraction failed")

// ErrNoText is the cause recorded when a document yields only whitespace.
var ErrNoText = eris.New("ocr: document has no extractable text")

// ExtractionError carries the path and cause of a failed extraction.
// errors.Is(err, ErrExtractionFailed) holds for every ExtractionError except
// those caused by context cancellation or deadline.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ocr: extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is matches ErrExtractionFailed unless the extraction was interrupted. An
// interrupted read says nothing about the document and must not be treated
// as unreadable.
func (e *ExtractionError) Is(target error) bool {
	if target != ErrExtractionFailed {
		return false
	}
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

func failed(path string, err error) error {
	return &ExtractionError{Path: path, Err: err}
}

// Extractor extracts text content from document files.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on config. When caching is
// enabled the provider is wrapped in a Cache.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	var ext Extractor
	switch cfg.Provider {
	case "local", "":
		ext = NewPdfToText(cfg.PdfToTextPath)
	case "plain":
		ext = NewPlain()
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_api_key")
		}
		ext = NewMistralOCR(cfg.MistralKey, cfg.MistralModel, cfg.MistralRPS)
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
	if cfg.Cache {
		return NewCache(ext, cfg.WarmConcurrency), nil
	}
	return ext, nil
}

// SearchText returns the document text folded for keyword search
// (lower case, no diacritics).
func SearchText(ctx context.Context, e Extractor, path string) (string, error) {
	text, err := e.ExtractText(ctx, path)
	if err != nil {
		return "", err
	}
	return fold.String(text), nil
}
