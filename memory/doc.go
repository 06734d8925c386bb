// Package memory provides a persistent, embedding-indexed record of
// conversation turns with meaning-based retrieval.
//
// Turns are stored once and retrieved by content, not by keyword: each turn
// is embedded into a unit vector and indexed for inner-product (cosine)
// similarity search. Multiple assistant surfaces (chat, voice) share one
// memory by pointing at the same storage path.
//
// Architecture:
//   - Embedder: text-to-vector conversion (lexical mock for offline use,
//     ONNX all-MiniLM for real semantic search, ristretto cache decorator)
//   - Store: vector index backend (flat exact-search store with snapshot
//     persistence; volatile chromem-go store for development)
//   - SemanticMemory: the conversation-facing API - add turns, search by
//     meaning, assemble relevant context for prompt injection
//
// Sensitive context fields (a detected emotion, for example) are sealed
// through an injected Cipher before they reach the Store, so a leaked
// snapshot file exposes only ciphertext for those fields.
//
// Sharing semantics: an instance sees another instance's writes through the
// snapshot it loads at construction, or through an explicit Reload. There is
// no live invalidation or file watching.
package memory
