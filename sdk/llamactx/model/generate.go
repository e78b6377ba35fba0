package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/ardanlabs/llamactx/sdk/llamactx/observ/metrics"
	"github.com/ardanlabs/llamactx/sdk/llamactx/sampling"
	"github.com/google/uuid"
)

// Answer appends the prompt to the conversation and generates up to
// maxTokens tokens in response. The prompt itself is never evicted, so when
// the older history can't make room for maxTokens the answer stops early
// with FinishReasonLength.
func (c *Context) Answer(ctx context.Context, prompt string, maxTokens int, params sampling.Params) (Answer, error) {
	return c.AnswerStreaming(ctx, prompt, maxTokens, params, nil)
}

// AnswerStreaming works like Answer and calls onToken with the text produced
// so far after every token. onToken runs on the calling goroutine and the
// next token is not evaluated until it returns.
//
// A cancel request, a teardown, or the ctx being done stop the answer at the
// next token. The partial answer is returned with FinishReasonCancelled and
// a nil error.
func (c *Context) AnswerStreaming(ctx context.Context, prompt string, maxTokens int, params sampling.Params, onToken func(partial string)) (Answer, error) {
	if err := params.Validate(); err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}

	release, err := c.lockForWork(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}
	defer release()

	// -------------------------------------------------------------------------

	start := time.Now()
	capacity := c.eng.Capacity()

	answer := Answer{
		ID:        uuid.NewString(),
		ContextID: c.id,
		Created:   start.Unix(),
	}

	if maxTokens >= capacity-reserve {
		return answer, fmt.Errorf("answer: %d tokens requested with capacity %d: %w", maxTokens, capacity, ErrAnswerTooLong)
	}

	c.log(ctx, "answer", "status", "started", "id", answer.ID, "context", c.id, "max-tokens", maxTokens)

	// -------------------------------------------------------------------------
	// Put the prompt in the history and make room for the answer.

	n, evicted, err := c.prepareEmbeds(ctx, prompt)
	answer.Usage.EvictedTokens = evicted

	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return c.finish(ctx, answer, FinishReasonCancelled, start), nil
		}

		metrics.AddErrors()
		return answer, fmt.Errorf("answer: %w", err)
	}

	answer.Usage.PromptTokens = n

	// The prompt block just appended is never evicted. When the history
	// before it can't make enough room, the answer gets what is left.
	answer.Usage.EvictedTokens += c.evict(ctx, maxTokens, 1)

	budget := min(maxTokens, capacity-reserve-1-len(c.tokens))
	if budget < maxTokens {
		c.log(ctx, "answer", "status", "clamped", "id", answer.ID, "context", c.id, "max-tokens", maxTokens, "budget", budget)
	}

	if err := c.sync(ctx); err != nil {
		if errors.Is(err, ErrCancelled) {
			return c.finish(ctx, answer, FinishReasonCancelled, start), nil
		}

		metrics.AddErrors()
		return answer, fmt.Errorf("answer: %w", err)
	}

	// -------------------------------------------------------------------------
	// Produce the answer one token at a time.

	var (
		sb       strings.Builder
		produced int
		reason   = FinishReasonLength
		genErr   error
	)

	sampler := sampling.New(params)
	eos := c.eng.EOS()
	newline := c.eng.Newline()

	for produced < budget {
		if c.stopRequested(ctx) {
			reason = FinishReasonCancelled
			break
		}

		tok := sampler.Sample(c.eng.Logits(), c.tokens, capacity, newline)

		if err := c.eng.Evaluate([]engine.Token{tok}, len(c.tokens)); err != nil {
			genErr = fmt.Errorf("answer: evaluate: %w", err)
			reason = FinishReasonError
			break
		}

		c.tokens = append(c.tokens, tok)
		c.evaluated = len(c.tokens)
		produced++

		if produced == 1 {
			metrics.AddTimeToFirstToken(time.Since(start))
		}

		if tok == eos {
			reason = FinishReasonStop
			break
		}

		sb.WriteString(c.eng.TokenToText(tok))

		if onToken != nil {
			onToken(sb.String())
		}
	}

	if produced > 0 {
		c.blocks = append(c.blocks, produced)
	}

	answer.Text = sb.String()
	answer.Usage.OutputTokens = produced

	answer = c.finish(ctx, answer, reason, start)

	if genErr != nil {
		metrics.AddErrors()
		return answer, genErr
	}

	return answer, nil
}

func (c *Context) finish(ctx context.Context, answer Answer, reason FinishReason, start time.Time) Answer {
	elapsed := time.Since(start)

	answer.FinishReason = reason
	answer.Duration = elapsed
	answer.Usage.ContextTokens = len(c.tokens)

	if secs := elapsed.Seconds(); secs > 0 {
		answer.Usage.TokensPerSecond = float64(answer.Usage.OutputTokens) / secs
	}

	switch reason {
	case FinishReasonCancelled:
		metrics.AddCancellations()

	case FinishReasonStop, FinishReasonLength:
		metrics.AddAnswers()
		metrics.AddAnswerUsage(answer.Usage.PromptTokens, answer.Usage.OutputTokens, answer.Usage.ContextTokens, answer.Usage.TokensPerSecond)
	}

	c.log(ctx, "answer", "status", "finished", "id", answer.ID, "context", c.id, "reason", reason,
		"prompt", answer.Usage.PromptTokens, "output", answer.Usage.OutputTokens, "context-tokens", answer.Usage.ContextTokens, "time", elapsed.String())

	return answer
}
