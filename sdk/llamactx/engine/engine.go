// Package engine defines the contract between the context buffer and the
// inference runtime that evaluates tokens and produces logits.
package engine

import (
	"fmt"
)

// Token is a vocabulary id.
type Token int32

// ModelConfig holds the values used when loading a model file.
type ModelConfig struct {
	ModelFile string
	Device    string
}

// ContextConfig holds the values used when creating an evaluation context.
// Size is the capacity of the context in tokens. Threads is the number of
// threads used for generation and prompt processing. BatchSize bounds the
// number of tokens passed to a single Evaluate call.
type ContextConfig struct {
	Size      int
	Threads   int
	BatchSize int
}

// Loader loads model files.
type Loader interface {
	LoadModel(cfg ModelConfig) (Model, error)
}

// Model is a loaded model that can create evaluation contexts.
type Model interface {
	NewContext(cfg ContextConfig) (Context, error)
	Description() string
	Free() error
}

// Context is a positional evaluation state bound to a model.
//
// Evaluate follows llama_eval semantics: the tokens are placed at positions
// pos through pos+len(tokens)-1 and everything previously cached at or after
// pos is discarded. Logits returns the scores produced by the last evaluated
// token and is only valid until the next Evaluate call.
type Context interface {
	Tokenize(text string, addBOS bool) ([]Token, error)
	Evaluate(tokens []Token, pos int) error
	Logits() []float32
	VocabSize() int
	Capacity() int
	TokenToText(tok Token) string
	EOS() Token
	Newline() Token
	Free() error
}

// =============================================================================

// TokenCountError is returned by Tokenize when the tokenizer reports a
// negative token count, which means the output buffer was too small.
type TokenCountError struct {
	Required int
}

func (e *TokenCountError) Error() string {
	return fmt.Sprintf("tokenize: buffer too small: %d tokens required", e.Required)
}
