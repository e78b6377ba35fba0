// Package llamactx provides a concurrently safe api for holding conversations
// against a model loaded with llama.cpp via yzma.
package llamactx

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/ardanlabs/llamactx/sdk/llamactx/engine/llamacpp"
	"github.com/ardanlabs/llamactx/sdk/llamactx/model"
)

// Version contains the current version of the llamactx package.
const Version = "0.4.0"

// =============================================================================

type options struct {
	log model.Logger
}

// Option represents options for configuring a Registry.
type Option func(*options)

// WithLogger sets the logger used by the registry and the models it loads
// when the model config doesn't provide one.
func WithLogger(log model.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// =============================================================================

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process wide registry backed by llama.cpp. Init must
// be called before a model is loaded through it.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(llamacpp.Loader{})
	})

	return defaultReg
}

// Registry holds at most one live model. Loading and unloading are exclusive
// and every other access is shared.
type Registry struct {
	loader engine.Loader
	log    model.Logger
	mu     sync.RWMutex
	model  *model.Model
}

// New constructs a registry that loads models with the specified loader.
func New(loader engine.Loader, opts ...Option) *Registry {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.log == nil {
		o.log = DiscardLogger
	}

	return &Registry{
		loader: loader,
		log:    o.log,
	}
}

// Load loads the model described by cfg and makes it the live model. A model
// that is already live is unloaded first.
func (r *Registry) Load(ctx context.Context, cfg model.Config) (*model.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.model != nil {
		r.log(ctx, "registry-load", "status", "unloading previous model", "model", r.model.ID())

		if err := r.model.Unload(ctx); err != nil {
			return nil, fmt.Errorf("load: unable to unload previous model: %w", err)
		}

		r.model = nil
	}

	if cfg.Log == nil {
		cfg.Log = r.log
	}

	m, err := model.New(ctx, r.loader, cfg)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	r.model = m

	return m, nil
}

// Unload tears down every context of the live model and releases it.
// Calling Unload without a live model is a no-op.
func (r *Registry) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.model == nil {
		return nil
	}

	if err := r.model.Unload(ctx); err != nil {
		return fmt.Errorf("unload: %w", err)
	}

	r.model = nil

	return nil
}

// Get returns the live model.
func (r *Registry) Get() (*model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.model, r.model != nil
}

// NewContext creates a context bound to the live model.
func (r *Registry) NewContext(ctx context.Context, opts ...model.ContextOption) (*model.Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.model == nil {
		return nil, fmt.Errorf("new-context: %w", model.ErrModelUnavailable)
	}

	return r.model.NewContext(ctx, opts...)
}
