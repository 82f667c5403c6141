package ocr

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExtractor struct {
	mu    sync.Mutex
	calls map[string]int
	texts map[string]string
}

func (c *countingExtractor) ExtractText(_ context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[path]++
	text, ok := c.texts[path]
	if !ok {
		return "", failed(path, eris.New("unreadable"))
	}
	return text, nil
}

func TestCache_MemoizesSuccessAndFailure(t *testing.T) {
	inner := &countingExtractor{texts: map[string]string{"a.pdf": "alpha"}}
	c := NewCache(inner, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		text, err := c.ExtractText(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "alpha", text)

		_, err = c.ExtractText(ctx, "b.pdf")
		assert.ErrorIs(t, err, ErrExtractionFailed)
	}

	assert.Equal(t, 1, inner.calls["a.pdf"])
	assert.Equal(t, 1, inner.calls["b.pdf"])
	assert.Equal(t, 2, c.Len())
}

func TestCache_Warm(t *testing.T) {
	inner := &countingExtractor{texts: map[string]string{"a.pdf": "alpha", "c.pdf": "gamma"}}
	c := NewCache(inner, 4)

	err := c.Warm(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf", "a.pdf", ""})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	text, err := c.ExtractText(context.Background(), "c.pdf")
	require.NoError(t, err)
	assert.Equal(t, "gamma", text)
	assert.Equal(t, 1, inner.calls["a.pdf"])
	assert.Equal(t, 1, inner.calls["c.pdf"])
}

func TestCache_WarmCancelled(t *testing.T) {
	inner := &countingExtractor{texts: map[string]string{"a.pdf": "alpha"}}
	c := NewCache(inner, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Warm(ctx, []string{"a.pdf"})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Reset(t *testing.T) {
	inner := &countingExtractor{texts: map[string]string{"a.pdf": "alpha"}}
	c := NewCache(inner, 0)
	assert.Equal(t, 1, c.concurrency)

	_, _ = c.ExtractText(context.Background(), "a.pdf") //nolint:errcheck
	c.Reset()
	assert.Equal(t, 0, c.Len())

	_, _ = c.ExtractText(context.Background(), "a.pdf") //nolint:errcheck
	assert.Equal(t, 2, inner.calls["a.pdf"])
}
