package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TurnRecord is the durable form of one conversation turn as a Store sees
// it. The field set is deliberately closed: schema drift in stored memories
// surfaces at compile time rather than at query time.
//
// Sealed carries ciphertext for sensitive context fields. Stores round-trip
// it as opaque bytes; only SemanticMemory seals and opens it.
type TurnRecord struct {
	TurnID            string            `json:"turn_id"`
	UserInput         string            `json:"user_input"`
	AssistantResponse string            `json:"assistant_response"`
	Timestamp         time.Time         `json:"timestamp"`
	Context           map[string]string `json:"context,omitempty"`
	Sealed            map[string][]byte `json:"sealed,omitempty"`
}

// EmbeddingText returns the text a turn is embedded from. Both sides of the
// exchange contribute, so a turn is findable by what was asked and by what
// was answered.
func (r TurnRecord) EmbeddingText() string {
	return fmt.Sprintf("%s %s", r.UserInput, r.AssistantResponse)
}

// TurnResult is a search hit mapped back into turn shape, with sensitive
// context fields already opened.
type TurnResult struct {
	TurnID            string
	UserInput         string
	AssistantResponse string
	Timestamp         time.Time
	Similarity        float32
	Context           map[string]string
}

// PromptBlock formats a result for injection into a downstream prompt.
func (t TurnResult) PromptBlock() string {
	return fmt.Sprintf("Q: %s\nA: %s", t.UserInput, t.AssistantResponse)
}

// NewTurnID returns a fresh turn identifier.
func NewTurnID() string {
	return uuid.New().String()
}
