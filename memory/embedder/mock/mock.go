// Package mock provides a deterministic, dependency-free embedder.
//
// Each content word is hashed onto a handful of signed dimensions, so texts
// sharing vocabulary genuinely score similar under cosine similarity. That
// is enough signal for tests and offline development; it is not a
// substitute for a real model.
package mock

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so mock and onnx embedders are
// interchangeable against the same store.
const DefaultDimensions = 384

// probesPerToken spreads each token across several dimensions, which keeps
// accidental hash collisions between unrelated words from producing a
// strong similarity.
const probesPerToken = 4

// Embedder is a deterministic lexical embedder.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with DefaultDimensions.
func New() *Embedder {
	return &Embedder{dimensions: DefaultDimensions}
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dimensions: dims}
}

// Embed builds a unit vector from the hashed content words of text.
// Identical input always yields an identical vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		seed := h.Sum64()
		for i := 0; i < probesPerToken; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			dim := int((seed >> 8) % uint64(m.dimensions))
			if seed&(1<<63) != 0 {
				vec[dim]--
			} else {
				vec[dim]++
			}
		}
	}
	return memory.Normalize(vec), nil
}

// EmbedBatch embeds each text in order.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// ModelID identifies the mock model.
func (m *Embedder) ModelID() string {
	return "mock-lexical-v1"
}

// stopwords are dropped before hashing so function words do not dominate
// the similarity signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "do": true,
	"does": true, "did": true, "i": true, "you": true, "it": true,
	"me": true, "my": true, "your": true, "of": true, "to": true,
	"in": true, "on": true, "at": true, "and": true, "or": true,
	"what": true, "whats": true, "who": true, "how": true, "why": true,
	"tell": true, "about": true, "this": true, "that": true,
	"for": true, "with": true, "can": true, "will": true,
}

// tokenize lowercases, strips punctuation, drops stopwords, and trims a
// plural "s" so "languages" and "language" hash together.
func tokenize(text string) []string {
	var toks []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if word == "" || stopwords[word] {
			continue
		}
		if len(word) > 3 {
			word = strings.TrimSuffix(word, "s")
		}
		toks = append(toks, word)
	}
	return toks
}

var _ memory.Embedder = (*Embedder)(nil)
