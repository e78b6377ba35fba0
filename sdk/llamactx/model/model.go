// Package model provides the low-level api for holding conversations against
// a loaded model: contexts, their token history, and answer generation.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/ardanlabs/llamactx/sdk/llamactx/observ/metrics"
	"github.com/google/uuid"
)

// Model represents a loaded model and the contexts created from it.
//
// Generation holds the model in read mode for the whole request and Unload
// takes it in write mode, so a model is never released while an answer is
// being produced.
type Model struct {
	id            string
	cfg           Config
	log           Logger
	eng           engine.Model
	lock          sync.RWMutex
	closing       atomic.Bool
	activeStreams atomic.Int32

	mu       sync.Mutex
	contexts map[string]*Context
	unloaded bool
}

// New loads the model file described by cfg using the specified loader.
func New(ctx context.Context, loader engine.Loader, cfg Config) (*Model, error) {
	if loader == nil {
		return nil, fmt.Errorf("new-model: loader required")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("new-model: %w: %w", ErrModelLoadFailed, err)
	}

	cfg = adjustConfig(cfg)

	// -------------------------------------------------------------------------

	start := time.Now()

	eng, err := loader.LoadModel(engine.ModelConfig{
		ModelFile: cfg.ModelFile,
		Device:    cfg.Device,
	})
	if err != nil {
		return nil, fmt.Errorf("new-model: %w: %w", ErrModelLoadFailed, err)
	}

	metrics.AddModelFileLoadTime(time.Since(start))

	m := Model{
		id:       uuid.NewString(),
		cfg:      cfg,
		log:      cfg.Log,
		eng:      eng,
		contexts: make(map[string]*Context),
	}

	m.log(ctx, "new-model", "status", "loaded", "id", m.id, "model-file", cfg.ModelFile, "desc", eng.Description(), "took", time.Since(start).String())

	return &m, nil
}

// ID returns the unique id for this loaded model.
func (m *Model) ID() string {
	return m.id
}

// Config returns the configuration being used.
func (m *Model) Config() Config {
	return m.cfg
}

// Description returns the engine's description of the model.
func (m *Model) Description() string {
	return m.eng.Description()
}

// ActiveStreams returns the number of answers in flight.
func (m *Model) ActiveStreams() int {
	return int(m.activeStreams.Load())
}

// Contexts returns the number of live contexts.
func (m *Model) Contexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.contexts)
}

// Unloaded reports whether the model has been released.
func (m *Model) Unloaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unloaded
}

// NewContext creates a new conversation bound to this model.
func (m *Model) NewContext(ctx context.Context, opts ...ContextOption) (*Context, error) {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.window <= 0 {
		o.window = m.cfg.ContextWindow
	}

	if o.threads <= 0 {
		o.threads = m.cfg.NThreads
	}

	// -------------------------------------------------------------------------

	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.closing.Load() {
		return nil, fmt.Errorf("new-context: %w", ErrModelUnavailable)
	}

	lctx, err := m.eng.NewContext(engine.ContextConfig{
		Size:      o.window,
		Threads:   o.threads,
		BatchSize: m.cfg.NBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("new-context: unable to create engine context: %w", err)
	}

	c := Context{
		id:     uuid.NewString(),
		model:  m,
		eng:    lctx,
		log:    m.log,
		sem:    make(chan struct{}, 1),
		prefix: o.prefix,
		suffix: o.suffix,
	}

	m.mu.Lock()
	m.contexts[c.id] = &c
	m.mu.Unlock()

	m.log(ctx, "new-context", "status", "created", "model", m.id, "context", c.id, "capacity", lctx.Capacity())

	return &c, nil
}

// Unload tears down every context and releases the model. Answers in flight
// are asked to stop and Unload waits for them to finish. Calling Unload on an
// unloaded model is a no-op.
//
// When ctx is done before the answers finish, nothing is released, the model
// and its contexts go back to serving, and Unload can be called again.
func (m *Model) Unload(ctx context.Context) error {
	if _, exists := ctx.Deadline(); !exists {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	if m.Unloaded() {
		return nil
	}

	// -------------------------------------------------------------------------
	// Ask everything running to stop.

	closed := m.closing.CompareAndSwap(false, true)

	var marked []*Context

	m.mu.Lock()
	for _, c := range m.contexts {
		if c.closing.CompareAndSwap(false, true) {
			marked = append(marked, c)
		}
	}
	m.mu.Unlock()

	for m.activeStreams.Load() > 0 {
		select {
		case <-ctx.Done():
			for _, c := range marked {
				c.closing.Store(false)
			}

			if closed {
				m.closing.Store(false)
			}

			m.log(ctx, "unload", "status", "aborted", "model", m.id, "active-streams", m.activeStreams.Load())

			return fmt.Errorf("unload: cannot unload %d active streams: %w", m.activeStreams.Load(), ctx.Err())

		case <-time.After(100 * time.Millisecond):
		}
	}

	// -------------------------------------------------------------------------
	// Tear down the contexts and release the model.

	m.lock.Lock()
	defer m.lock.Unlock()

	m.mu.Lock()
	if m.unloaded {
		m.mu.Unlock()
		return nil
	}

	contexts := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		contexts = append(contexts, c)
	}
	clear(m.contexts)
	m.unloaded = true
	m.mu.Unlock()

	var sb strings.Builder

	for _, c := range contexts {
		c.closing.Store(true)

		c.sem <- struct{}{}
		err := c.teardown()
		<-c.sem

		if err != nil {
			fmt.Fprintf(&sb, "unload: failed to free context: %s: %v\n", c.id, err)
		}
	}

	if err := m.eng.Free(); err != nil {
		fmt.Fprintf(&sb, "unload: failed to free model: %v\n", err)
	}

	m.log(ctx, "unload", "status", "unloaded", "model", m.id, "contexts", len(contexts))

	if sb.Len() > 0 {
		return fmt.Errorf("%s", sb.String())
	}

	return nil
}

// =============================================================================

// acquire takes the model in read mode for one answer.
func (m *Model) acquire() (func(), error) {
	if m.closing.Load() {
		return nil, ErrModelUnavailable
	}

	m.activeStreams.Add(1)
	m.lock.RLock()

	if m.closing.Load() {
		m.lock.RUnlock()
		m.activeStreams.Add(-1)
		return nil, ErrModelUnavailable
	}

	release := func() {
		m.lock.RUnlock()
		m.activeStreams.Add(-1)
	}

	return release, nil
}

func (m *Model) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.contexts, id)
}
