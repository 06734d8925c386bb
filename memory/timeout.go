package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// timeoutEmbedder bounds every embedding call with its own deadline.
type timeoutEmbedder struct {
	inner Embedder
	limit time.Duration
}

// WithTimeout wraps an Embedder so each call carries a per-call deadline.
// A call that exceeds the limit fails with ErrEmbeddingTimeout and writes
// nothing; the caller may retry.
func WithTimeout(inner Embedder, limit time.Duration) Embedder {
	return &timeoutEmbedder{inner: inner, limit: limit}
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()
	vec, err := t.inner.Embed(tctx, text)
	if err != nil {
		return nil, t.mapErr(ctx, err)
	}
	return vec, nil
}

func (t *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	tctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()
	vecs, err := t.inner.EmbedBatch(tctx, texts)
	if err != nil {
		return nil, t.mapErr(ctx, err)
	}
	return vecs, nil
}

func (t *timeoutEmbedder) Dimensions() int { return t.inner.Dimensions() }

func (t *timeoutEmbedder) ModelID() string { return t.inner.ModelID() }

// mapErr attributes a deadline error to this wrapper's limit only when the
// caller's own context is still live; an expired or canceled parent passes
// through untouched.
func (t *timeoutEmbedder) mapErr(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w after %s", ErrEmbeddingTimeout, t.limit)
	}
	return err
}
