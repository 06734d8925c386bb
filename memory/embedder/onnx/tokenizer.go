//go:build onnx

package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BERT special token ids shared by MiniLM-class vocabularies.
const (
	unkTokenID = 100
	clsTokenID = 101
	sepTokenID = 102
)

// wordPieceTokenizer implements BERT-style WordPiece tokenization from a
// HuggingFace tokenizer.json vocabulary.
type wordPieceTokenizer struct {
	vocab map[string]int
}

func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer file: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer file has empty vocabulary")
	}
	return &wordPieceTokenizer{vocab: file.Model.Vocab}, nil
}

// encode produces fixed-length input ids and attention mask for one text,
// wrapped in [CLS]...[SEP] and truncated to maxLen.
func (t *wordPieceTokenizer) encode(text string, maxLen int) (inputIDs, attentionMask []int64) {
	inputIDs = make([]int64, maxLen)
	attentionMask = make([]int64, maxLen)

	tokens := t.tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1
	for i, tok := range tokens {
		inputIDs[i+1] = tok
		attentionMask[i+1] = 1
	}
	end := len(tokens) + 1
	inputIDs[end] = sepTokenID
	attentionMask[end] = 1
	return inputIDs, attentionMask
}

// tokenize lowercases (uncased vocabulary) and maps words to token ids,
// falling back to WordPiece subword splitting for out-of-vocabulary words.
func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPieces(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkTokenID)
			}
		}
	}
	return ids
}

// wordPieces greedily splits a word into the longest matching vocabulary
// pieces, continuation pieces carrying the "##" prefix.
func (t *wordPieceTokenizer) wordPieces(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
