package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/abiusch/penny-assistant-sub000/memory"
	"github.com/abiusch/penny-assistant-sub000/memory/embedder/mock"
)

func TestEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	a, err := e.Embed(ctx, "What is Python?")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(ctx, "What is Python?")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestEmbedder_UnitNorm(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	vec, err := e.Embed(ctx, "Python is a programming language.")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != mock.DefaultDimensions {
		t.Fatalf("vector length = %d, want %d", len(vec), mock.DefaultDimensions)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("squared norm = %f, want 1", norm)
	}
}

func TestEmbedder_LexicalSimilarity(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	doc, err := e.Embed(ctx, "What is Python? Python is a programming language.")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	related, err := e.Embed(ctx, "tell me about programming languages")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	unrelated, err := e.Embed(ctx, "what's the weather")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	simRelated := memory.CosineSimilarity(doc, related)
	simUnrelated := memory.CosineSimilarity(doc, unrelated)
	if simRelated <= 0.3 {
		t.Errorf("related similarity = %f, want > 0.3", simRelated)
	}
	if simUnrelated >= 0.6 {
		t.Errorf("unrelated similarity = %f, want < 0.6", simUnrelated)
	}
	if simRelated <= simUnrelated {
		t.Errorf("related %f not above unrelated %f", simRelated, simUnrelated)
	}
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	texts := []string{"first text", "second text", "third text"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("EmbedBatch returned %d vectors, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch vector %d differs from single embed at %d", i, j)
			}
		}
	}
}

func TestEmbedder_CustomDimensions(t *testing.T) {
	e := mock.NewWithDimensions(64)
	if e.Dimensions() != 64 {
		t.Errorf("Dimensions = %d, want 64", e.Dimensions())
	}
	vec, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 64 {
		t.Errorf("vector length = %d, want 64", len(vec))
	}
}
