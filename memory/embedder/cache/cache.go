// Package cache decorates an Embedder with a ristretto cache keyed by input
// text. Context assembly tends to probe the model with the same query
// repeatedly; cached texts skip the model entirely.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

// DefaultMaxEntries bounds the cache when Config leaves it unset.
const DefaultMaxEntries = 4096

// Embedder caches another Embedder's output per input text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// Config configures the cache decorator.
type Config struct {
	// MaxEntries bounds the number of cached embeddings.
	// Default: DefaultMaxEntries.
	MaxEntries int64
}

// New wraps inner with an embedding cache.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, embedding and caching on miss.
// Callers must not mutate the returned slice.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch serves cached texts locally and batches only the misses
// through the inner embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := e.cache.Get(text); ok {
			if vec, ok := v.([]float32); ok {
				vecs[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}
	fresh, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		vecs[missIdx[j]] = vec
		e.cache.Set(missTexts[j], vec, 1)
	}
	return vecs, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// ModelID returns the inner embedder's model identifier: a cached vector is
// still that model's vector.
func (e *Embedder) ModelID() string {
	return e.inner.ModelID()
}

// Wait blocks until buffered cache writes are applied. Ristretto admits
// entries asynchronously; tests use this to make hits deterministic.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}

var _ memory.Embedder = (*Embedder)(nil)
