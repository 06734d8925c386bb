package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// SemanticMemory is the conversation-facing API over a Store and an
// Embedder.
//
// The turn-id map that resolves turn ids to vector ids is instance-local
// and never persisted: a fresh instance pointed at an existing snapshot can
// search all prior turns by content, but FindSimilar and DeleteTurn only
// resolve turn ids this instance inserted itself. That boundary is by
// contract, see FindSimilar.
//
// Instances sharing a storage path see each other's writes through the
// snapshot loaded at Store construction or through an explicit Reload;
// there is no live invalidation.
type SemanticMemory struct {
	store    Store
	embedder Embedder
	config   *Config

	mu    sync.RWMutex
	turns map[string]turnRef // instance-local, never persisted
}

// turnRef resolves a turn id inserted by this instance to its vector.
type turnRef struct {
	id     uint64
	vector []float32
}

// Config holds SemanticMemory configuration.
type Config struct {
	// EncryptSensitive toggles sealing of SensitiveFields through Cipher.
	EncryptSensitive bool

	// Cipher seals and opens sensitive context fields.
	// Required when EncryptSensitive is true.
	Cipher Cipher

	// SensitiveFields are the context keys treated as sensitive.
	// Default: "emotion".
	SensitiveFields []string
}

// DefaultConfig returns sensible defaults: no encryption, "emotion" as the
// sensitive field once a cipher is configured.
var DefaultConfig = &Config{
	SensitiveFields: []string{"emotion"},
}

// NewSemantic creates a SemanticMemory over the given store and embedder.
// It fails fast with ErrDimensionMismatch when the embedder's output size
// does not match the store's configured dimension, and refuses a config
// that requests encryption without a cipher.
func NewSemantic(store Store, embedder Embedder, config *Config) (*SemanticMemory, error) {
	if config == nil {
		config = DefaultConfig
	}
	if dim := store.Stats().EmbeddingDim; dim != embedder.Dimensions() {
		return nil, fmt.Errorf("%w: store holds %d-dimensional vectors, embedder %q produces %d",
			ErrDimensionMismatch, dim, embedder.ModelID(), embedder.Dimensions())
	}
	if config.EncryptSensitive && config.Cipher == nil {
		return nil, fmt.Errorf("sensitive-field encryption requested but no cipher configured")
	}
	return &SemanticMemory{
		store:    store,
		embedder: embedder,
		config:   config,
		turns:    make(map[string]turnRef),
	}, nil
}

// TurnOption customizes a turn before insertion.
type TurnOption func(*TurnRecord)

// WithTurnID supplies a caller-chosen turn id instead of a generated UUID.
func WithTurnID(id string) TurnOption {
	return func(r *TurnRecord) { r.TurnID = id }
}

// WithTimestamp overrides the turn timestamp (default: now, UTC).
func WithTimestamp(ts time.Time) TurnOption {
	return func(r *TurnRecord) { r.Timestamp = ts }
}

// WithContext attaches context tags to the turn, e.g. a modality marker or
// a detected emotion. The map is copied.
func WithContext(tags map[string]string) TurnOption {
	return func(r *TurnRecord) {
		if len(tags) == 0 {
			return
		}
		if r.Context == nil {
			r.Context = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			r.Context[k] = v
		}
	}
}

// AddTurn embeds and stores one conversation exchange.
// Returns the turn id (caller-supplied or generated).
//
// When the store accepts the turn in memory but fails to persist it, the
// turn id is returned together with the persistence error; the caller must
// treat the turn as not durably committed.
func (m *SemanticMemory) AddTurn(ctx context.Context, userInput, assistantResponse string, opts ...TurnOption) (string, error) {
	rec := TurnRecord{
		UserInput:         userInput,
		AssistantResponse: assistantResponse,
	}
	for _, opt := range opts {
		opt(&rec)
	}
	if rec.TurnID == "" {
		rec.TurnID = NewTurnID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	vec, err := m.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("embed turn: %w", err)
	}

	if err := m.seal(&rec); err != nil {
		return "", fmt.Errorf("seal sensitive fields: %w", err)
	}

	ids, storeErr := m.store.Add(ctx, [][]float32{vec}, []TurnRecord{rec})
	if len(ids) != 1 {
		return "", fmt.Errorf("store turn: %w", storeErr)
	}

	m.mu.Lock()
	m.turns[rec.TurnID] = turnRef{id: ids[0], vector: vec}
	m.mu.Unlock()

	if storeErr != nil {
		return rec.TurnID, fmt.Errorf("turn %s stored in memory but not persisted: %w", rec.TurnID, storeErr)
	}
	log.Printf("[MEMORY] Stored turn %s (vector id %d)", rec.TurnID, ids[0])
	return rec.TurnID, nil
}

// Search embeds the query and returns up to k turns ranked by similarity,
// dropping results below minSimilarity. Filtering happens after ranking, so
// k bounds the search fan-out, not the result count.
func (m *SemanticMemory) Search(ctx context.Context, query string, k int, minSimilarity float32) ([]TurnResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := m.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	results := m.toResults(matches, minSimilarity)
	log.Printf("[MEMORY] %d of %d hits cleared similarity %.2f for query %q",
		len(results), len(matches), minSimilarity, truncateLog(query, 50))
	return results, nil
}

// RelevantContext searches for turns related to query and assembles them
// into one text block ready for prompt injection, "Q:/A:" pairs separated
// by "---". An empty string means no relevant memory, not an error.
func (m *SemanticMemory) RelevantContext(ctx context.Context, query string, maxTurns int, minSimilarity float32) (string, error) {
	results, err := m.Search(ctx, query, maxTurns, minSimilarity)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	blocks := make([]string, len(results))
	for i, res := range results {
		blocks[i] = res.PromptBlock()
	}
	return strings.Join(blocks, "\n---\n"), nil
}

// FindSimilar returns up to k turns similar to a previously inserted turn,
// excluding the turn itself.
//
// Turn-id resolution is instance-local: a turn id inserted by another
// instance, or in an earlier process lifetime, is not resolvable here and
// yields an empty result. Search by content instead for those.
func (m *SemanticMemory) FindSimilar(ctx context.Context, turnID string, k int) ([]TurnResult, error) {
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	ref, ok := m.turns[turnID]
	m.mu.RUnlock()
	if !ok {
		log.Printf("[MEMORY] Turn %s not known to this instance", turnID)
		return nil, nil
	}

	// Over-fetch by one so the probe turn can be dropped from its own
	// results without shrinking the answer.
	matches, err := m.store.Search(ctx, ref.vector, k+1)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	filtered := matches[:0]
	for _, match := range matches {
		if match.ID == ref.id {
			continue
		}
		filtered = append(filtered, match)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return m.toResults(filtered, -1), nil
}

// DeleteTurn removes a previously inserted turn from the store.
// Returns false when this instance does not know the turn id; like
// FindSimilar, resolution is instance-local and an unknown id is an
// expected condition, not an error.
func (m *SemanticMemory) DeleteTurn(ctx context.Context, turnID string) (bool, error) {
	m.mu.RLock()
	ref, ok := m.turns[turnID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := m.store.Delete(ctx, []uint64{ref.id}); err != nil {
		return false, fmt.Errorf("delete turn %s: %w", turnID, err)
	}
	m.mu.Lock()
	delete(m.turns, turnID)
	m.mu.Unlock()
	log.Printf("[MEMORY] Deleted turn %s (vector id %d)", turnID, ref.id)
	return true, nil
}

// Reload refreshes the underlying store from its snapshot, picking up
// writes from other instances. The instance-local turn map is kept: vector
// ids are never reused, so existing references stay valid.
func (m *SemanticMemory) Reload(ctx context.Context) error {
	return m.store.Reload(ctx)
}

// Stats reports the underlying store's contents.
func (m *SemanticMemory) Stats() StoreStats {
	return m.store.Stats()
}

// seal encrypts configured sensitive context fields in place, moving them
// from Context plaintext to Sealed ciphertext.
func (m *SemanticMemory) seal(rec *TurnRecord) error {
	if !m.config.EncryptSensitive || len(rec.Context) == 0 {
		return nil
	}
	for _, field := range m.config.SensitiveFields {
		plain, ok := rec.Context[field]
		if !ok {
			continue
		}
		blob, err := m.config.Cipher.Seal([]byte(plain))
		if err != nil {
			return fmt.Errorf("seal %q: %w", field, err)
		}
		if rec.Sealed == nil {
			rec.Sealed = make(map[string][]byte)
		}
		rec.Sealed[field] = blob
		delete(rec.Context, field)
	}
	return nil
}

// open decrypts a record's sealed fields back into a plaintext context map.
// Without a cipher the sealed fields are simply omitted. The returned map is
// always a fresh copy; callers may mutate it without touching stored state.
func (m *SemanticMemory) open(rec TurnRecord) (map[string]string, error) {
	if len(rec.Context) == 0 && len(rec.Sealed) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(rec.Context)+len(rec.Sealed))
	for k, v := range rec.Context {
		out[k] = v
	}
	if m.config.Cipher == nil {
		return out, nil
	}
	for field, blob := range rec.Sealed {
		plain, err := m.config.Cipher.Open(blob)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", field, err)
		}
		out[field] = string(plain)
	}
	return out, nil
}

// toResults maps store matches into turn results, applying the similarity
// floor and opening sealed fields. A record that fails to open is skipped
// with a log line rather than failing the whole search.
func (m *SemanticMemory) toResults(matches []Match, minSimilarity float32) []TurnResult {
	results := make([]TurnResult, 0, len(matches))
	for _, match := range matches {
		if match.Similarity < minSimilarity {
			continue
		}
		tags, err := m.open(match.Record)
		if err != nil {
			log.Printf("[MEMORY] Skipping vector id %d: %v", match.ID, err)
			continue
		}
		results = append(results, TurnResult{
			TurnID:            match.Record.TurnID,
			UserInput:         match.Record.UserInput,
			AssistantResponse: match.Record.AssistantResponse,
			Timestamp:         match.Record.Timestamp,
			Similarity:        match.Similarity,
			Context:           tags,
		})
	}
	return results
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
