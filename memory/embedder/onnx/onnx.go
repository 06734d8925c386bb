//go:build onnx

// Package onnx embeds text with a sentence-transformer model (by default
// all-MiniLM-L6-v2) through ONNX Runtime. Build with the "onnx" tag and
// point Config at the model, tokenizer, and ONNX runtime shared library.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

// maxSequenceLength is the fixed input window for MiniLM-class models.
const maxSequenceLength = 128

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the .onnx model file. Required.
	ModelPath string

	// TokenizerPath is the path to the model's tokenizer.json. Required.
	TokenizerPath string

	// LibraryPath is the path to libonnxruntime.so / .dylib. Required
	// unless the runtime environment is already initialized.
	LibraryPath string

	// Dimensions is the embedding vector size. Default: 384.
	Dimensions int

	// Model identifies the model version for mismatch detection.
	// Default: "all-MiniLM-L6-v2".
	Model string
}

// Embedder generates embeddings through an ONNX Runtime session.
//
// The session and tokenizer are loaded lazily on the first call and cached
// for the process lifetime; constructing an Embedder is cheap.
type Embedder struct {
	cfg Config

	once      sync.Once
	initErr   error
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
}

// New creates an ONNX embedder. The model is not touched until the first
// Embed call.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.Model == "" {
		cfg.Model = "all-MiniLM-L6-v2"
	}
	return &Embedder{cfg: cfg}, nil
}

// init loads the tokenizer and creates the inference session exactly once.
func (e *Embedder) init() error {
	e.once.Do(func() {
		tokenizer, err := loadTokenizer(e.cfg.TokenizerPath)
		if err != nil {
			e.initErr = fmt.Errorf("%w: load tokenizer: %v", memory.ErrModelUnavailable, err)
			return
		}

		if e.cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(e.cfg.LibraryPath)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				e.initErr = fmt.Errorf("%w: initialize onnx runtime: %v", memory.ErrModelUnavailable, err)
				return
			}
		}

		session, err := ort.NewDynamicAdvancedSession(e.cfg.ModelPath,
			[]string{"input_ids", "attention_mask", "token_type_ids"},
			[]string{"last_hidden_state"},
			nil,
		)
		if err != nil {
			e.initErr = fmt.Errorf("%w: create session: %v", memory.ErrModelUnavailable, err)
			return
		}

		e.tokenizer = tokenizer
		e.session = session
	})
	return e.initErr
}

// Embed converts text to a unit-normalized embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs, attentionMask := e.tokenizer.encode(text, maxSequenceLength)
	tokenTypeIDs := make([]int64, maxSequenceLength)

	shape := ort.NewShape(1, int64(maxSequenceLength))
	inputTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	err = e.session.Run([]ort.Value{inputTensor, maskTensor, typeTensor}, outputs)
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return e.pool(outTensor, attentionMask)
}

// EmbedBatch embeds each text in order through the shared session.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.cfg.Dimensions
}

// ModelID identifies the configured model.
func (e *Embedder) ModelID() string {
	return e.cfg.Model
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// pool reduces the raw model output to a single unit vector. Pre-pooled
// models emit [1, dim]; raw transformer output is [1, seq, dim] and gets
// mean-pooled over attended tokens.
func (e *Embedder) pool(out *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := out.GetData()
	shape := out.GetShape()
	dim := e.cfg.Dimensions

	switch len(shape) {
	case 2:
		if len(data) < dim {
			return nil, fmt.Errorf("output has %d values, expected %d", len(data), dim)
		}
		vec := make([]float32, dim)
		copy(vec, data[:dim])
		return memory.Normalize(vec), nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if shape[2] != int64(dim) {
			return nil, fmt.Errorf("hidden size %d, expected %d", shape[2], dim)
		}
		seqLen := int(shape[1])
		vec := make([]float32, dim)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if i >= len(attentionMask) || attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * dim
			for j := 0; j < dim; j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}
		return memory.Normalize(vec), nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

var _ memory.Embedder = (*Embedder)(nil)
