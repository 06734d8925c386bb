// Package chromem backs the memory.Store interface with chromem-go, a pure
// Go embedded vector database.
//
// This backend is meant for development and experiments: it keeps
// everything in the chromem collection, optionally persisted to a chromem
// database directory, but does not support Get or Delete (chromem-go does
// not expose them) and does not coordinate concurrent processes. The flat
// store is the production default.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

const collectionName = "turns"

// Store wraps a chromem collection of conversation turns.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
	dim int

	path string

	mu     sync.Mutex
	nextID uint64
}

// Config configures a chromem store.
type Config struct {
	// Dimensions is the expected vector length. Required.
	Dimensions int

	// Path optionally persists the chromem database under a directory.
	// Empty means fully in-memory.
	Path string
}

// New creates a chromem-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d",
			memory.ErrDimensionMismatch, cfg.Dimensions)
	}

	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// No embedding func: callers always provide vectors. Default distance
	// is cosine, which matches the rest of the system.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{
		db:   db,
		col:  col,
		dim:  cfg.Dimensions,
		path: cfg.Path,
		// Good enough for a dev backend: existing documents keep their ids,
		// new ones continue after the current count.
		nextID: uint64(col.Count()) + 1,
	}, nil
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, vectors [][]float32, records []memory.TurnRecord) ([]uint64, error) {
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("add: %d vectors for %d records", len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, store expects %d",
				memory.ErrDimensionMismatch, i, len(vec), s.dim)
		}
		content, err := json.Marshal(records[i])
		if err != nil {
			return nil, fmt.Errorf("serialize record: %w", err)
		}

		id := s.nextID
		doc := chromem.Document{
			ID:        strconv.FormatUint(id, 10),
			Content:   string(content),
			Embedding: memory.Normalize(append([]float32(nil), vec...)),
			Metadata: map[string]string{
				"turn_id":   records[i].TurnID,
				"timestamp": records[i].Timestamp.Format(time.RFC3339),
			},
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return ids, fmt.Errorf("add document: %w", err)
		}
		s.nextID++
		ids = append(ids, id)
	}

	log.Printf("[CHROMEM] Stored %d turns, collection holds %d", len(ids), s.col.Count())
	return ids, nil
}

// Search implements memory.Store.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]memory.Match, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			memory.ErrDimensionMismatch, len(query), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	// chromem rejects nResults larger than the collection.
	if count := s.col.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	q := memory.Normalize(append([]float32(nil), query...))
	results, err := s.col.QueryEmbedding(ctx, q, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.Match, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseUint(res.ID, 10, 64)
		if err != nil {
			log.Printf("[CHROMEM] Skipping document %q: bad id", res.ID)
			continue
		}
		var rec memory.TurnRecord
		if err := json.Unmarshal([]byte(res.Content), &rec); err != nil {
			log.Printf("[CHROMEM] Skipping document %q: %v", res.ID, err)
			continue
		}
		matches = append(matches, memory.Match{
			ID:         id,
			Similarity: res.Similarity,
			Record:     rec,
		})
	}
	return matches, nil
}

// Get implements memory.Store. chromem-go has no lookup by document id, so
// this backend cannot serve it.
func (s *Store) Get(ctx context.Context, id uint64) (memory.TurnRecord, bool, error) {
	return memory.TurnRecord{}, false, fmt.Errorf("%w: get by id", memory.ErrNotSupported)
}

// Delete implements memory.Store. chromem-go does not expose delete by id.
func (s *Store) Delete(ctx context.Context, ids []uint64) error {
	return fmt.Errorf("%w: delete", memory.ErrNotSupported)
}

// Reload implements memory.Store. The chromem store has no snapshot pair to
// re-read; persistent databases are loaded once at construction.
func (s *Store) Reload(ctx context.Context) error { return nil }

// Stats implements memory.Store.
func (s *Store) Stats() memory.StoreStats {
	return memory.StoreStats{
		TotalVectors: s.col.Count(),
		EmbeddingDim: s.dim,
		StoragePath:  s.path,
	}
}

// Close implements memory.Store. chromem keeps everything in memory.
func (s *Store) Close() error { return nil }

var _ memory.Store = (*Store)(nil)
