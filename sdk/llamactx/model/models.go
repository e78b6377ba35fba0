package model

import "time"

// FinishReason explains why an answer stopped.
type FinishReason string

// Set of finish reasons.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonCancelled FinishReason = "cancelled"
	FinishReasonError     FinishReason = "error"
)

// Usage provides details about the tokens used by an answer.
type Usage struct {
	PromptTokens    int     `json:"prompt_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	ContextTokens   int     `json:"context_tokens"`
	EvictedTokens   int     `json:"evicted_tokens"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// Answer represents the result of a generation.
type Answer struct {
	ID           string        `json:"id"`
	ContextID    string        `json:"context_id"`
	Created      int64         `json:"created"`
	Text         string        `json:"text"`
	FinishReason FinishReason  `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Duration     time.Duration `json:"duration"`
}

// Cancelled reports whether the answer was stopped by a cancel request.
func (a Answer) Cancelled() bool {
	return a.FinishReason == FinishReasonCancelled
}

// AnswerResponse is one message of a streamed answer. Every message but the
// last carries the Delta produced by one token. The last message has a
// FinishReason, the full Text and the Usage. Err is set when the answer
// failed.
type AnswerResponse struct {
	ID           string       `json:"id"`
	Delta        string       `json:"delta"`
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        Usage        `json:"usage"`
	Err          error        `json:"-"`
}
