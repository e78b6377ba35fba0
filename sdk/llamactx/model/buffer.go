package model

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/ardanlabs/llamactx/sdk/llamactx/observ/metrics"
)

// reserve is the number of positions always kept free at the end of a
// context.
const reserve = 4

// PrepareEmbeds wraps the prompt with the context's prefix and suffix,
// tokenizes it, and evaluates the tokens at the end of the history. Whole
// blocks are evicted from the front of the history when the prompt would not
// fit. It returns the number of tokens appended.
func (c *Context) PrepareEmbeds(ctx context.Context, prompt string) (int, error) {
	release, err := c.lockForWork(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	n, _, err := c.prepareEmbeds(ctx, prompt)
	return n, err
}

// Evict removes whole blocks from the front of the history until needed more
// tokens fit. It returns the number of tokens removed.
func (c *Context) Evict(ctx context.Context, needed int) (int, error) {
	release, err := c.lockForWork(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if needed >= c.eng.Capacity()-reserve {
		return 0, fmt.Errorf("evict: %d tokens can never fit capacity %d: %w", needed, c.eng.Capacity(), ErrAnswerTooLong)
	}

	return c.evict(ctx, needed, 0), nil
}

// =============================================================================

// lockForWork takes the model in read mode and then the context lock.
func (c *Context) lockForWork(ctx context.Context) (func(), error) {
	if c == nil || c.model == nil || c.closing.Load() {
		return nil, ErrContextUnavailable
	}

	releaseModel, err := c.model.acquire()
	if err != nil {
		return nil, err
	}

	if err := c.acquire(ctx); err != nil {
		releaseModel()
		return nil, err
	}

	release := func() {
		c.release()
		releaseModel()
	}

	return release, nil
}

// prepareEmbeds returns the number of tokens appended and the number of
// tokens evicted to make room for them.
func (c *Context) prepareEmbeds(ctx context.Context, prompt string) (int, int, error) {
	text := c.prefix + " " + prompt + " " + c.suffix

	tokens, err := c.eng.Tokenize(text, true)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare-embeds: %w: %w", ErrTokenizationFailed, err)
	}

	n := len(tokens)
	capacity := c.eng.Capacity()

	if n >= capacity-reserve {
		return 0, 0, fmt.Errorf("prepare-embeds: prompt of %d tokens exceeds capacity %d: %w", n, capacity, ErrPromptTooLong)
	}

	var evicted int
	if len(c.tokens)+n >= capacity-reserve {
		evicted = c.evict(ctx, n, 0)
	}

	// -------------------------------------------------------------------------

	start := time.Now()

	if err := c.sync(ctx); err != nil {
		return 0, evicted, err
	}

	base := len(c.tokens)

	for i, tok := range tokens {
		if c.stopRequested(ctx) {
			c.log(ctx, "prepare-embeds", "status", "cancelled", "context", c.id, "evaluated", i, "tokens", n)
			return 0, evicted, fmt.Errorf("prepare-embeds: %w", ErrCancelled)
		}

		if err := c.eng.Evaluate([]engine.Token{tok}, base+i); err != nil {
			return 0, evicted, fmt.Errorf("prepare-embeds: evaluate: %w", err)
		}
	}

	c.tokens = append(c.tokens, tokens...)
	c.blocks = append(c.blocks, n)
	c.evaluated = len(c.tokens)

	metrics.AddPrefillTime(time.Since(start))

	return n, evicted, nil
}

// evict drops whole blocks from the front until the blocks dropped hold at
// least needed tokens and needed more tokens fit under the reserve. The last
// keep blocks are never dropped. The engine state no longer lines up with
// the history afterwards, so the next sync evaluates the remaining history
// again.
func (c *Context) evict(ctx context.Context, needed int, keep int) int {
	limit := c.eng.Capacity() - reserve

	if len(c.tokens)+needed < limit {
		return 0
	}

	var sum, i int
	for i < len(c.blocks)-keep && (sum < needed || len(c.tokens)-sum+needed >= limit) {
		sum += c.blocks[i]
		i++
	}

	if i == 0 {
		return 0
	}

	c.blocks = slices.Clone(c.blocks[i:])
	c.tokens = slices.Clone(c.tokens[sum:])
	c.evaluated = 0

	metrics.AddEviction(sum)
	c.log(ctx, "evict", "context", c.id, "blocks", i, "tokens", sum, "remaining", len(c.tokens))

	return sum
}

// sync evaluates the part of the history the engine has not seen.
func (c *Context) sync(ctx context.Context) error {
	batch := max(c.model.cfg.NBatch, 1)

	for c.evaluated < len(c.tokens) {
		if c.stopRequested(ctx) {
			return fmt.Errorf("sync: %w", ErrCancelled)
		}

		end := min(c.evaluated+batch, len(c.tokens))

		if err := c.eng.Evaluate(c.tokens[c.evaluated:end], c.evaluated); err != nil {
			return fmt.Errorf("sync: evaluate: %w", err)
		}

		c.evaluated = end
	}

	return nil
}
