package cache_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/abiusch/penny-assistant-sub000/memory"
	"github.com/abiusch/penny-assistant-sub000/memory/embedder/cache"
	"github.com/abiusch/penny-assistant-sub000/memory/embedder/mock"
)

// countingEmbedder counts how often the model is actually invoked.
type countingEmbedder struct {
	inner  memory.Embedder
	embeds atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embeds.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embeds.Add(int64(len(texts)))
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelID() string { return c.inner.ModelID() }

func TestCache_HitSkipsModel(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: mock.New()}
	e, err := cache.New(counting, cache.Config{})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer e.Close()

	first, err := e.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()

	second, err := e.Embed(ctx, "repeated query")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got := counting.embeds.Load(); got != 1 {
		t.Errorf("model invoked %d times, want 1", got)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
}

func TestCache_EmbedBatchMixesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: mock.New()}
	e, err := cache.New(counting, cache.Config{})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer e.Close()

	if _, err := e.Embed(ctx, "cached text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()

	vecs, err := e.EmbedBatch(ctx, []string{"cached text", "fresh text"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("EmbedBatch returned %d vectors, want 2", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != e.Dimensions() {
			t.Errorf("vector %d has length %d, want %d", i, len(vec), e.Dimensions())
		}
	}
	// One call for the initial embed, one for the single batch miss.
	if got := counting.embeds.Load(); got != 2 {
		t.Errorf("model invoked %d times, want 2", got)
	}
}

func TestCache_DelegatesIdentity(t *testing.T) {
	inner := mock.New()
	e, err := cache.New(inner, cache.Config{})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer e.Close()

	if e.Dimensions() != inner.Dimensions() {
		t.Errorf("Dimensions = %d, want %d", e.Dimensions(), inner.Dimensions())
	}
	if e.ModelID() != inner.ModelID() {
		t.Errorf("ModelID = %q, want %q", e.ModelID(), inner.ModelID())
	}
}
