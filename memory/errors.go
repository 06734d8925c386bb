package memory

import "errors"

// Sentinel errors for the memory system. Store and Embedder implementations
// wrap these so callers can branch with errors.Is.
var (
	// ErrModelUnavailable means the embedding backend could not be loaded
	// or reached. Surfaced to the caller, never retried automatically.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrDimensionMismatch means a vector length does not match the
	// configured embedding dimension. A mismatch between an embedder and a
	// store is fatal at construction time.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingTimeout means a single embedding call exceeded its
	// deadline. Retryable by the caller; no partial state is written on
	// behalf of a timed-out call.
	ErrEmbeddingTimeout = errors.New("embedding timed out")

	// ErrSnapshotCorrupt marks an unreadable snapshot pair. During
	// construction it is recovered locally by starting from an empty index;
	// an explicit Reload surfaces it.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrNotSupported is returned by backends that cannot implement an
	// optional operation (the chromem development store cannot delete).
	ErrNotSupported = errors.New("operation not supported by this store")
)
