package model

import "errors"

// Set of error kinds returned by the package. Use errors.Is to check them.
var (
	ErrContextUnavailable = errors.New("context unavailable")
	ErrModelUnavailable   = errors.New("model unavailable")
	ErrModelLoadFailed    = errors.New("model load failed")
	ErrTokenizationFailed = errors.New("tokenization failed")
	ErrPromptTooLong      = errors.New("prompt too long")
	ErrAnswerTooLong      = errors.New("answer too long")
	ErrCancelled          = errors.New("cancelled")
)
