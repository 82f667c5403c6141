package ocr

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type cacheEntry struct {
	text string
	err  error
}

// Cache memoizes extraction results per path, failures included, so a
// document read by several rules is only extracted once.
type Cache struct {
	inner       Extractor
	concurrency int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache wraps inner. concurrency bounds Warm; values < 1 mean 1.
func NewCache(inner Extractor, concurrency int) *Cache {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Cache{
		inner:       inner,
		concurrency: concurrency,
		entries:     make(map[string]cacheEntry),
	}
}

// ExtractText returns the cached result for path, extracting on first use.
// Context cancellation is not cached.
func (c *Cache) ExtractText(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if ok {
		return e.text, e.err
	}

	text, err := c.inner.ExtractText(ctx, path)
	if ctx.Err() != nil {
		return text, err
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{text: text, err: err}
	c.mu.Unlock()
	return text, err
}

// Warm extracts every path concurrently ahead of evaluation. Extraction
// failures are cached, not returned; only cancellation aborts.
func (c *Cache) Warm(ctx context.Context, paths []string) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		g.Go(func() error {
			if _, err := c.ExtractText(gCtx, p); err != nil {
				zap.L().Debug("ocr: warm extraction failed", zap.String("path", p), zap.Error(err))
			}
			return gCtx.Err()
		})
	}
	return g.Wait()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
