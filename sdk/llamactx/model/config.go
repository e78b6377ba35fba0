package model

import (
	"context"
	"fmt"
	"os"
)

const (
	defContextWindow = 4 * 1024
	defNBatch        = 512
)

// Logger provides a function for logging messages from different APIs.
type Logger func(ctx context.Context, msg string, args ...any)

// =============================================================================

// Config represents model level configuration. The defaults are used when
// these values are set to 0.
//
// ModelFile is the path to the model file. This is mandatory to provide.
//
// Device is the device to use for the model. If not set, the default device
// will be used.
//
// ContextWindow is the default capacity in tokens of every context created
// from this model. A context can override it with WithContextWindow.
// When set to 0, the default value is 4096.
//
// NBatch is the maximum number of tokens handed to the engine in one call
// when the history has to be evaluated again after an eviction.
// When set to 0, the default value is 512.
//
// NThreads is the number of threads to use for evaluation. When set to 0, the
// default engine value is used.
type Config struct {
	Log           Logger
	ModelFile     string
	Device        string
	ContextWindow int
	NBatch        int
	NThreads      int
}

func validateConfig(cfg Config) error {
	if cfg.ModelFile == "" {
		return fmt.Errorf("validate-config: model file is required")
	}

	if _, err := os.Stat(cfg.ModelFile); err != nil {
		return fmt.Errorf("validate-config: model file: %w", err)
	}

	if cfg.ContextWindow < 0 || cfg.NBatch < 0 || cfg.NThreads < 0 {
		return fmt.Errorf("validate-config: negative values are not allowed")
	}

	return nil
}

func adjustConfig(cfg Config) Config {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = defContextWindow
	}

	if cfg.NBatch <= 0 {
		cfg.NBatch = defNBatch
	}

	if cfg.Log == nil {
		cfg.Log = func(ctx context.Context, msg string, args ...any) {}
	}

	return cfg
}

// =============================================================================

type contextOptions struct {
	window  int
	threads int
	prefix  string
	suffix  string
}

// ContextOption represents options for configuring a new Context.
type ContextOption func(*contextOptions)

// WithContextWindow overrides the capacity of the context in tokens.
func WithContextWindow(window int) ContextOption {
	return func(o *contextOptions) {
		o.window = window
	}
}

// WithThreads overrides the number of threads used to evaluate tokens.
func WithThreads(threads int) ContextOption {
	return func(o *contextOptions) {
		o.threads = threads
	}
}

// WithPrefix sets the text placed before every prompt.
func WithPrefix(prefix string) ContextOption {
	return func(o *contextOptions) {
		o.prefix = prefix
	}
}

// WithSuffix sets the text placed after every prompt.
func WithSuffix(suffix string) ContextOption {
	return func(o *contextOptions) {
		o.suffix = suffix
	}
}
