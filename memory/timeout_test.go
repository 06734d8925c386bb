package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abiusch/penny-assistant-sub000/memory"
	"github.com/abiusch/penny-assistant-sub000/memory/embedder/mock"
	"github.com/abiusch/penny-assistant-sub000/memory/store/flat"
)

// slowEmbedder stalls until its delay elapses or the context is done.
type slowEmbedder struct {
	inner memory.Embedder
	delay time.Duration
}

func (s *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.inner.Embed(ctx, text)
}

func (s *slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.inner.EmbedBatch(ctx, texts)
}

func (s *slowEmbedder) Dimensions() int { return s.inner.Dimensions() }
func (s *slowEmbedder) ModelID() string { return s.inner.ModelID() }

func TestWithTimeout_Expires(t *testing.T) {
	ctx := context.Background()
	slow := &slowEmbedder{inner: mock.New(), delay: time.Second}
	embedder := memory.WithTimeout(slow, 10*time.Millisecond)

	_, err := embedder.Embed(ctx, "some text")
	if !errors.Is(err, memory.ErrEmbeddingTimeout) {
		t.Fatalf("Embed error = %v, want ErrEmbeddingTimeout", err)
	}
	if _, err := embedder.EmbedBatch(ctx, []string{"a", "b"}); !errors.Is(err, memory.ErrEmbeddingTimeout) {
		t.Fatalf("EmbedBatch error = %v, want ErrEmbeddingTimeout", err)
	}
}

func TestWithTimeout_ParentDeadlinePassesThrough(t *testing.T) {
	// The caller's own deadline is tighter than the wrapper's limit; its
	// expiry must not be relabeled as an embedding timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	slow := &slowEmbedder{inner: mock.New(), delay: time.Second}
	embedder := memory.WithTimeout(slow, time.Minute)

	_, err := embedder.Embed(ctx, "some text")
	if errors.Is(err, memory.ErrEmbeddingTimeout) {
		t.Fatalf("caller deadline reported as embedding timeout: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Embed error = %v, want context.DeadlineExceeded", err)
	}

	if _, err := embedder.EmbedBatch(ctx, []string{"a"}); errors.Is(err, memory.ErrEmbeddingTimeout) {
		t.Fatalf("caller deadline reported as embedding timeout: %v", err)
	}
}

func TestWithTimeout_FastCallPasses(t *testing.T) {
	ctx := context.Background()
	embedder := memory.WithTimeout(mock.New(), time.Second)

	vec, err := embedder.Embed(ctx, "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != embedder.Dimensions() {
		t.Errorf("vector length = %d, want %d", len(vec), embedder.Dimensions())
	}
}

func TestWithTimeout_NoPartialStateOnTimeout(t *testing.T) {
	ctx := context.Background()
	slow := &slowEmbedder{inner: mock.New(), delay: time.Second}
	embedder := memory.WithTimeout(slow, 10*time.Millisecond)

	store, err := flat.New(flat.Config{Dimensions: embedder.Dimensions()})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	mem, err := memory.NewSemantic(store, embedder, nil)
	if err != nil {
		t.Fatalf("Failed to create semantic memory: %v", err)
	}

	if _, err := mem.AddTurn(ctx, "question", "answer"); !errors.Is(err, memory.ErrEmbeddingTimeout) {
		t.Fatalf("AddTurn error = %v, want ErrEmbeddingTimeout", err)
	}
	if got := mem.Stats().TotalVectors; got != 0 {
		t.Errorf("timed-out turn left %d vectors in the store", got)
	}
}
