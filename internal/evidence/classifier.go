// Package evidence classifies a case's downloaded documents into the
// RES 1125 checklist categories.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/fold"
	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/ocr"
)

// Classifier infers evidence categories from display names, portal
// sections and, for comunicacao only, document content.
type Classifier struct {
	table     Table
	extractor ocr.Extractor
}

// NewClassifier creates a Classifier. A nil extractor disables the content
// fallback.
func NewClassifier(table Table, extractor ocr.Extractor) *Classifier {
	return &Classifier{table: table, extractor: extractor}
}

// Table returns the classification policy in use.
func (c *Classifier) Table() Table {
	return c.table
}

// Categorize returns the categories implied by an item's name and section,
// without touching the filesystem. The result is never empty: items that
// match nothing are CategoryUnknown.
func (c *Classifier) Categorize(item model.EvidenceItem) []model.Category {
	name := fold.String(item.DisplayName)
	seen := make(map[model.Category]bool)
	var cats []model.Category
	add := func(cat model.Category) {
		if !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}

	for _, rule := range c.table.Rules {
		if _, ok := fold.ContainsAny(name, rule.Exclude); ok {
			continue
		}
		if _, ok := fold.ContainsAny(name, rule.Keywords); ok {
			add(rule.Category)
		}
	}

	if item.Section != "" {
		section := fold.String(item.Section)
		for _, hint := range c.table.SectionHints {
			if strings.Contains(section, fold.String(hint.Contains)) {
				add(hint.Category)
				break
			}
		}
	}

	if len(cats) == 0 {
		return []model.Category{model.CategoryUnknown}
	}
	return cats
}

// Classify marks which categories are present in items. Items whose file
// is missing on disk are kept in the result but never count toward a
// category. An item with an empty file path is an input error.
func (c *Classifier) Classify(ctx context.Context, items []model.EvidenceItem) (*model.Classification, error) {
	out := &model.Classification{
		Present: make(map[model.Category]bool, len(model.Categories)),
		Items:   make([]model.ClassifiedItem, 0, len(items)),
	}
	for _, cat := range model.Categories {
		out.Present[cat] = false
	}

	for i, item := range items {
		if item.FilePath == "" {
			return nil, &InputError{Index: i, Name: item.DisplayName}
		}
		ci := model.ClassifiedItem{
			EvidenceItem: item,
			Categories:   c.Categorize(item),
			Exists:       fileExists(item.FilePath),
		}
		if !ci.Exists {
			zap.L().Warn("evidence: file not found, ignoring",
				zap.String("name", item.DisplayName),
				zap.String("path", item.FilePath),
			)
		} else {
			for _, cat := range ci.Categories {
				out.Present[cat] = true
			}
		}
		out.Items = append(out.Items, ci)
	}

	if !out.Present[model.CategoryComunicacao] && c.extractor != nil {
		matched, warnings, err := c.contentMentionsRegistry(ctx, out.Items)
		if err != nil {
			return nil, err
		}
		if matched {
			out.Present[model.CategoryComunicacao] = true
			out.ContentMatched = true
			out.Warnings = warnings
		}
	}

	zap.L().Debug("evidence: classified",
		zap.Int("items", len(items)),
		zap.Any("present", out.Present),
		zap.Bool("content_matched", out.ContentMatched),
	)
	return out, nil
}

// contentMentionsRegistry scans every existing item for the registry
// mailbox tokens. When no readable document mentions them but some document
// could not be read, the unreadable ones get the benefit of the doubt and
// are reported as warnings. Cancellation aborts the scan with an error.
func (c *Classifier) contentMentionsRegistry(ctx context.Context, items []model.ClassifiedItem) (bool, []string, error) {
	var unreadable []string
	for _, it := range items {
		if !it.Exists {
			continue
		}
		if err := ctx.Err(); err != nil {
			return false, nil, eris.Wrap(err, "evidence: content scan interrupted")
		}
		text, err := ocr.SearchText(ctx, c.extractor, it.FilePath)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return false, nil, eris.Wrap(cerr, "evidence: content scan interrupted")
			}
			if errors.Is(err, ocr.ErrExtractionFailed) {
				unreadable = append(unreadable, it.DisplayName)
			}
			zap.L().Debug("evidence: content scan could not read file",
				zap.String("path", it.FilePath), zap.Error(err))
			continue
		}
		if token, ok := fold.ContainsAny(text, c.table.ContentTokens); ok {
			zap.L().Info("evidence: comunicacao found by content",
				zap.String("path", it.FilePath), zap.String("token", token))
			return true, nil, nil
		}
	}
	if len(unreadable) == 0 {
		return false, nil, nil
	}

	warnings := make([]string, len(unreadable))
	for i, name := range unreadable {
		warnings[i] = fmt.Sprintf("Benefício da dúvida (%s): texto de %q não pôde ser extraído", model.CategoryComunicacao, name)
	}
	zap.L().Info("evidence: comunicacao assumed from unreadable documents",
		zap.Strings("names", unreadable))
	return true, warnings, nil
}

// InputError reports a malformed evidence item.
type InputError struct {
	Index int
	Name  string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("evidence: item %d (%s) has no file path", e.Index, e.Name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
