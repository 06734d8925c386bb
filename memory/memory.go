package memory

import (
	"context"
	"math"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (deterministic lexical embedder for offline use),
// onnx (all-MiniLM-L6-v2 via ONNX Runtime), cache (ristretto decorator over
// another Embedder).
//
// Embeddings must be deterministic for identical input and model version,
// and unit-normalized so that inner product equals cosine similarity.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	// An unavailable model backend fails with ErrModelUnavailable; a zero
	// vector is never substituted for a failed call.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call, returning one vector
	// per input in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelID identifies the underlying model so callers can detect a
	// dimension or model mismatch before touching a store.
	ModelID() string
}

// Store is the vector index backend interface.
// Implementations: flat (exact inner-product search with durable snapshot
// persistence), chromem (volatile development backend).
type Store interface {
	// Add normalizes each vector, appends it with its record, assigns fresh
	// sequential ids (never reused for the store's lifetime), and persists
	// synchronously before returning. Returned ids are in input order.
	//
	// When persistence fails the in-memory state still reflects the new
	// records and the assigned ids are returned alongside the error; the
	// caller must treat those records as not durably committed.
	Add(ctx context.Context, vectors [][]float32, records []TurnRecord) ([]uint64, error)

	// Search returns up to k records with the highest inner-product
	// similarity to the query, sorted descending. Similarity is in
	// [-1, 1]; ties go to the lower id. An empty store yields an empty
	// result, not an error.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)

	// Get returns the record stored under id. ok is false for unknown or
	// deleted ids.
	Get(ctx context.Context, id uint64) (rec TurnRecord, ok bool, err error)

	// Delete removes the given ids from the index and persists. Unknown ids
	// are ignored.
	Delete(ctx context.Context, ids []uint64) error

	// Reload replaces in-memory state with the current on-disk snapshot,
	// making writes from other instances visible.
	Reload(ctx context.Context) error

	// Stats reports the store's live record count, dimensions, and path.
	Stats() StoreStats

	// Close releases resources.
	Close() error
}

// Cipher seals sensitive record fields before they reach a Store and opens
// them after retrieval. The Store only ever sees the sealed blobs.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// Match is a single result from a Store similarity search.
type Match struct {
	ID         uint64
	Similarity float32
	Record     TurnRecord
}

// StoreStats describes a Store's current contents.
type StoreStats struct {
	TotalVectors int
	EmbeddingDim int
	StoragePath  string
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Both vectors are expected to be unit-normalized already, so this is a
// plain dot product. Mismatched lengths yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// Normalize scales vec to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / n
	}
	return vec
}
