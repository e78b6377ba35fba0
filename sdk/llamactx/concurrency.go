package llamactx

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/model"
	"github.com/ardanlabs/llamactx/sdk/llamactx/observ/metrics"
	"github.com/ardanlabs/llamactx/sdk/llamactx/sampling"
)

var activeStreams atomic.Int32

// ActiveStreams returns the number of answers in flight through any
// registry.
func ActiveStreams() int {
	return int(activeStreams.Load())
}

// Answer runs a non-streaming answer on the context.
func (r *Registry) Answer(ctx context.Context, c *model.Context, prompt string, maxTokens int, params sampling.Params) (model.Answer, error) {
	f := func() (model.Answer, error) {
		return c.Answer(ctx, prompt, maxTokens, params)
	}

	return nonStreaming(ctx, r, f)
}

// AnswerStream runs an answer on the context and delivers one message per
// token followed by a final message carrying the finish reason and usage.
// The channel is closed when the answer is complete. Only the final message
// carries the answer ID.
func (r *Registry) AnswerStream(ctx context.Context, c *model.Context, prompt string, maxTokens int, params sampling.Params) (<-chan model.AnswerResponse, error) {
	f := func() <-chan model.AnswerResponse {
		lch := make(chan model.AnswerResponse)

		go func() {
			defer close(lch)

			defer func() {
				if rec := recover(); rec != nil {
					metrics.AddPanics()
					sendMessage(ctx, lch, errorResponse(fmt.Errorf("answer-stream: %v", rec)))
				}
			}()

			var last string
			onToken := func(partial string) {
				delta := strings.TrimPrefix(partial, last)
				last = partial

				sendMessage(ctx, lch, model.AnswerResponse{Delta: delta, Text: partial})
			}

			answer, err := c.AnswerStreaming(ctx, prompt, maxTokens, params, onToken)
			if err != nil {
				sendMessage(ctx, lch, errorResponse(err))
				return
			}

			sendMessage(ctx, lch, model.AnswerResponse{
				ID:           answer.ID,
				Text:         answer.Text,
				FinishReason: answer.FinishReason,
				Usage:        answer.Usage,
			})
		}()

		return lch
	}

	return streaming(ctx, r, f, errorResponse)
}

func errorResponse(err error) model.AnswerResponse {
	return model.AnswerResponse{
		FinishReason: model.FinishReasonError,
		Err:          err,
	}
}

// =============================================================================

func (r *Registry) acquire() error {
	if _, exists := r.Get(); !exists {
		return fmt.Errorf("acquire: %w", model.ErrModelUnavailable)
	}

	activeStreams.Add(1)
	return nil
}

func (r *Registry) release() {
	activeStreams.Add(-1)
}

type nonStreamingFunc[T any] func() (T, error)

func nonStreaming[T any](ctx context.Context, r *Registry, f nonStreamingFunc[T]) (T, error) {
	var zero T

	if err := r.acquire(); err != nil {
		return zero, err
	}
	defer r.release()

	return f()
}

type streamingFunc[T any] func() <-chan T
type errorFunc[T any] func(err error) T

func streaming[T any](ctx context.Context, r *Registry, f streamingFunc[T], ef errorFunc[T]) (<-chan T, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}

	ch := make(chan T, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.AddPanics()
				sendError(ch, ef, fmt.Errorf("%v", rec))
			}

			close(ch)
			r.release()
		}()

		lch := f()

		var cancelled bool
		for msg := range lch {
			if err := sendMessage(ctx, ch, msg); err != nil {
				cancelled = true
				break
			}
		}

		if cancelled {
			sendError(ch, ef, ctx.Err())

			// The producer stops at its next token once ctx is done.
			for range lch {
			}
		}
	}()

	return ch, nil
}

func sendMessage[T any](ctx context.Context, ch chan T, msg T) error {
	// Try to send the message before checking the context, the caller might
	// not be receiving anymore.
	select {
	case ch <- msg:
		return nil
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case ch <- msg:
		return nil
	}
}

func sendError[T any](ch chan T, ef errorFunc[T], err error) {
	select {
	case ch <- ef(err):
	case <-time.After(100 * time.Millisecond):
	}
}
