// Package flat implements exact nearest-neighbor search over unit vectors,
// using inner product as the similarity metric, with snapshot persistence.
//
// A store with a storage path keeps two companion files: "<path>.index"
// (binary vector rows) and "<path>.meta" (JSON record side-table, next-id
// counter, dimension). Every mutation persists synchronously before
// returning. Deleted ids are dropped from memory immediately and from disk
// by the save that same call performs, so space is reclaimed on save; ids
// are monotonic and never reused.
//
// Writers are serialized by an in-process mutex and, when a path is
// configured, by an advisory lock on "<path>.lock" held across the whole
// reload-append-save cycle. A writer re-reads the on-disk snapshot under
// the lock before applying its change, so concurrent processes sharing a
// path do not lose each other's writes. Readers run concurrently and never
// observe a partially applied mutation.
package flat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

const (
	indexSuffix = ".index"
	metaSuffix  = ".meta"
	lockSuffix  = ".lock"
)

// Store is the default persistent vector index.
type Store struct {
	dim  int
	path string

	mu      sync.RWMutex
	ids     []uint64
	vectors [][]float32
	records map[uint64]memory.TurnRecord
	nextID  uint64
}

// Config configures a flat store.
type Config struct {
	// Dimensions is the expected vector length. Required.
	Dimensions int

	// Path is the storage path prefix for the snapshot pair and lock file.
	// Empty means memory-only: no persistence, no cross-process locking.
	Path string
}

// New creates a flat store. When a path is configured and a readable
// snapshot pair exists there, it is loaded. A missing or corrupt snapshot
// is never fatal: the store logs the problem and starts empty.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d",
			memory.ErrDimensionMismatch, cfg.Dimensions)
	}
	s := &Store{
		dim:     cfg.Dimensions,
		path:    cfg.Path,
		records: make(map[uint64]memory.TurnRecord),
		nextID:  1,
	}
	if s.path == "" {
		return s, nil
	}
	// Read under the advisory lock so a concurrent writer's rename pair is
	// never observed half-applied.
	unlock, err := s.acquireFileLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	snap, err := readSnapshot(s.path, s.dim)
	unlock()
	switch {
	case errors.Is(err, errSnapshotMissing):
		// First run at this path.
	case err != nil:
		log.Printf("[FLAT] Snapshot at %s unreadable, starting empty: %v", s.path, err)
	default:
		s.install(snap)
		log.Printf("[FLAT] Loaded %d vectors from %s", len(s.ids), s.path)
	}
	return s, nil
}

// Add implements memory.Store.
func (s *Store) Add(ctx context.Context, vectors [][]float32, records []memory.TurnRecord) ([]uint64, error) {
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("add: %d vectors for %d records", len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	normalized := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, store expects %d",
				memory.ErrDimensionMismatch, i, len(vec), s.dim)
		}
		normalized[i] = memory.Normalize(append([]float32(nil), vec...))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireFileLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	defer unlock()

	// Pick up writes from other processes before assigning ids.
	s.refreshFromDiskLocked()

	ids := make([]uint64, len(normalized))
	for i := range normalized {
		id := s.nextID
		s.nextID++
		ids[i] = id
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, normalized[i])
		s.records[id] = records[i]
	}

	if err := s.saveLocked(); err != nil {
		return ids, fmt.Errorf("persist snapshot: %w", err)
	}
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
	q := memory.Normalize(append([]float32(nil), query...))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]memory.Match, 0, len(s.ids))
	for i, id := range s.ids {
		matches = append(matches, memory.Match{
			ID:         id,
			Similarity: memory.CosineSimilarity(q, s.vectors[i]),
			Record:     s.records[id],
		})
	}
	// Stable sort: equal similarity keeps insertion order, so the lower id
	// wins the tie.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get implements memory.Store.
func (s *Store) Get(ctx context.Context, id uint64) (memory.TurnRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	doomed := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireFileLock()
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	defer unlock()

	s.refreshFromDiskLocked()

	removed := 0
	keptIDs := s.ids[:0]
	keptVectors := s.vectors[:0]
	for i, id := range s.ids {
		if doomed[id] {
			delete(s.records, id)
			removed++
			continue
		}
		keptIDs = append(keptIDs, id)
		keptVectors = append(keptVectors, s.vectors[i])
	}
	s.ids = keptIDs
	s.vectors = keptVectors

	if removed == 0 {
		return nil
	}
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	log.Printf("[FLAT] Deleted %d vectors, %d remain", removed, len(s.ids))
	return nil
}

// Reload implements memory.Store. Unlike load-on-construction, an explicit
// reload surfaces a corrupt snapshot as ErrSnapshotCorrupt instead of
// silently emptying the index the caller is already using.
func (s *Store) Reload(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireFileLock()
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	snap, err := readSnapshot(s.path, s.dim)
	unlock()
	if errors.Is(err, errSnapshotMissing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", memory.ErrSnapshotCorrupt, err)
	}
	s.install(snap)
	return nil
}

// Stats implements memory.Store.
func (s *Store) Stats() memory.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memory.StoreStats{
		TotalVectors: len(s.ids),
		EmbeddingDim: s.dim,
		StoragePath:  s.path,
	}
}

// Close implements memory.Store. The flat store holds no open handles
// between calls.
func (s *Store) Close() error { return nil }

// refreshFromDiskLocked replaces in-memory state with the current snapshot.
// Callers hold the write mutex and the file lock. A missing snapshot keeps
// the current state (nothing newer to pick up); an unreadable one is logged
// and ignored so a corrupt file cannot block writes.
func (s *Store) refreshFromDiskLocked() {
	if s.path == "" {
		return
	}
	snap, err := readSnapshot(s.path, s.dim)
	if err != nil {
		if !errors.Is(err, errSnapshotMissing) {
			log.Printf("[FLAT] Ignoring unreadable snapshot during write: %v", err)
		}
		return
	}
	s.install(snap)
}

// install swaps snapshot state in. Callers hold the write mutex.
func (s *Store) install(snap *snapshot) {
	s.ids = snap.ids
	s.vectors = snap.vectors
	s.records = snap.records
	s.nextID = snap.nextID
}

// saveLocked writes the snapshot pair. Callers hold the write mutex and the
// file lock. Memory-only stores skip it.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	return writeSnapshot(s.path, s.dim, &snapshot{
		ids:     s.ids,
		vectors: s.vectors,
		records: s.records,
		nextID:  s.nextID,
	})
}

var _ memory.Store = (*Store)(nil)
