package model

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

// Context is one conversation: the token history evaluated so far, the
// blocks that history was appended in, and the text wrapped around every
// prompt. A Context is safe for concurrent use; operations on the same
// Context run one at a time.
type Context struct {
	id      string
	model   *Model
	eng     engine.Context
	log     Logger
	sem     chan struct{}
	cancel  atomic.Bool
	closing atomic.Bool

	// Guarded by sem.
	tokens    []engine.Token
	blocks    []int
	evaluated int
	prefix    string
	suffix    string
	tornDown  bool
}

// ID returns the unique id of the context.
func (c *Context) ID() string {
	return c.id
}

// Capacity returns the maximum number of tokens the context can hold.
func (c *Context) Capacity() int {
	if c == nil || c.eng == nil {
		return 0
	}

	return c.eng.Capacity()
}

// Cancel asks the operation running on this context to stop at its next
// check. When nothing is running the next operation stops at its first check.
func (c *Context) Cancel() {
	if c == nil {
		return
	}

	c.cancel.Store(true)
}

// Tokens returns a copy of the token history.
func (c *Context) Tokens(ctx context.Context) ([]engine.Token, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	return slices.Clone(c.tokens), nil
}

// Blocks returns a copy of the sizes of the units appended to the history.
func (c *Context) Blocks(ctx context.Context) ([]int, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	return slices.Clone(c.blocks), nil
}

// Prefix returns the text placed before every prompt.
func (c *Context) Prefix(ctx context.Context) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	return c.prefix, nil
}

// Suffix returns the text placed after every prompt.
func (c *Context) Suffix(ctx context.Context) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	return c.suffix, nil
}

// SetPrefix replaces the text placed before every prompt.
func (c *Context) SetPrefix(ctx context.Context, prefix string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.prefix = prefix
	return nil
}

// SetSuffix replaces the text placed after every prompt.
func (c *Context) SetSuffix(ctx context.Context, suffix string) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.suffix = suffix
	return nil
}

// Reset forgets the whole history.
func (c *Context) Reset(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	c.tokens = nil
	c.blocks = nil
	c.evaluated = 0

	return nil
}

// Free stops any operation running on the context, waits for it to return,
// and releases the engine resources. Calling Free again is a no-op.
func (c *Context) Free(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.closing.Store(true)

	select {
	case <-ctx.Done():
		return fmt.Errorf("free: %w", ctx.Err())

	case c.sem <- struct{}{}:
	}

	defer func() { <-c.sem }()

	if c.tornDown {
		return nil
	}

	err := c.teardown()
	c.model.remove(c.id)

	c.log(ctx, "free-context", "status", "freed", "context", c.id)

	return err
}

// =============================================================================

// acquire takes the exclusive lock on the context.
func (c *Context) acquire(ctx context.Context) error {
	if c == nil || c.closing.Load() {
		return ErrContextUnavailable
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case c.sem <- struct{}{}:
	}

	if c.tornDown || c.eng == nil {
		<-c.sem
		return ErrContextUnavailable
	}

	return nil
}

func (c *Context) release() {
	<-c.sem
}

// teardown releases the engine context. The caller holds the lock.
func (c *Context) teardown() error {
	if c.tornDown {
		return nil
	}

	c.tornDown = true
	c.tokens = nil
	c.blocks = nil
	c.evaluated = 0

	if err := c.eng.Free(); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}

	return nil
}

// stopRequested reports whether the running operation must stop. A pending
// cancel request is consumed by the operation that observes it.
func (c *Context) stopRequested(ctx context.Context) bool {
	if c.closing.Load() || c.model.closing.Load() {
		return true
	}

	if ctx.Err() != nil {
		return true
	}

	return c.cancel.CompareAndSwap(true, false)
}
