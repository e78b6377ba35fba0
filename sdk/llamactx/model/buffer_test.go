package model

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/ardanlabs/llamactx/sdk/llamactx/engine/enginetest"
	"github.com/google/go-cmp/cmp"
)

func Test_PromptTooLong(t *testing.T) {
	eng := enginetest.New(16, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	_, err := c.PrepareEmbeds(context.Background(), prompt(20))
	if !errors.Is(err, ErrPromptTooLong) {
		t.Fatalf("expected ErrPromptTooLong, got %v", err)
	}

	if n := eng.Contexts()[0].Evaluated(); n != 0 {
		t.Fatalf("expected no evaluation, got %d tokens evaluated", n)
	}

	// capacity-4 is already too long.
	if _, err := c.PrepareEmbeds(context.Background(), prompt(12)); !errors.Is(err, ErrPromptTooLong) {
		t.Fatalf("expected ErrPromptTooLong at capacity-4, got %v", err)
	}

	if _, err := c.PrepareEmbeds(context.Background(), prompt(11)); err != nil {
		t.Fatalf("expected capacity-5 to fit: %s", err)
	}

	checkInvariant(t, c)
}

func Test_NoEviction(t *testing.T) {
	eng := enginetest.New(4096, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	for _, n := range []int{10, 5, 8} {
		got, err := c.PrepareEmbeds(context.Background(), prompt(n))
		if err != nil {
			t.Fatalf("prepare: %s", err)
		}

		if got != n {
			t.Fatalf("expected %d tokens, got %d", n, got)
		}
	}

	if _, err := c.PrepareEmbeds(context.Background(), prompt(6)); err != nil {
		t.Fatalf("prepare: %s", err)
	}

	blocks, _ := c.Blocks(context.Background())
	if diff := cmp.Diff([]int{10, 5, 8, 6}, blocks); diff != "" {
		t.Fatalf("wrong blocks (-exp +got):\n%s", diff)
	}

	tokens, _ := c.Tokens(context.Background())
	if len(tokens) != 29 {
		t.Fatalf("expected 29 tokens, got %d", len(tokens))
	}

	if diff := cmp.Diff(tokens, eng.Contexts()[0].Cache()); diff != "" {
		t.Fatalf("engine cache doesn't match the history (-exp +got):\n%s", diff)
	}
}

func Test_EvictWholeBlocks(t *testing.T) {
	eng := enginetest.New(32, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	for _, p := range []string{"hello hello hello hello hello hello hello hello hello", "world world world world world world world world world", "a a a a"} {
		if _, err := c.PrepareEmbeds(context.Background(), p); err != nil {
			t.Fatalf("prepare: %s", err)
		}
	}

	before, _ := c.Tokens(context.Background())

	// 25 tokens held, 6 more don't fit under 28, so the first block goes.
	if _, err := c.PrepareEmbeds(context.Background(), "b b b b b"); err != nil {
		t.Fatalf("prepare: %s", err)
	}

	blocks, _ := c.Blocks(context.Background())
	if diff := cmp.Diff([]int{10, 5, 6}, blocks); diff != "" {
		t.Fatalf("wrong blocks (-exp +got):\n%s", diff)
	}

	tokens, _ := c.Tokens(context.Background())

	exp := append([]engine.Token(nil), before[10:]...)
	exp = append(exp, enginetest.TokenBOS)
	for range 5 {
		exp = append(exp, eng.Token("b"))
	}

	if diff := cmp.Diff(exp, tokens); diff != "" {
		t.Fatalf("wrong history (-exp +got):\n%s", diff)
	}

	if diff := cmp.Diff(tokens, eng.Contexts()[0].Cache()); diff != "" {
		t.Fatalf("engine cache doesn't match the history (-exp +got):\n%s", diff)
	}

	checkInvariant(t, c)
}

func Test_EvictUntilFit(t *testing.T) {
	eng := enginetest.New(32, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	for _, n := range []int{2, 2, 20} {
		if _, err := c.PrepareEmbeds(context.Background(), prompt(n)); err != nil {
			t.Fatalf("prepare: %s", err)
		}
	}

	// The first two blocks only hold 4 of the 8 tokens needed, so the 20
	// token block goes too.
	removed, err := c.Evict(context.Background(), 8)
	if err != nil {
		t.Fatalf("evict: %s", err)
	}

	if removed != 24 {
		t.Fatalf("expected 24 tokens removed, got %d", removed)
	}

	blocks, _ := c.Blocks(context.Background())
	if len(blocks) != 0 {
		t.Fatalf("expected every block to go, got %v", blocks)
	}

	checkInvariant(t, c)
}

func Test_TokenizationFailed(t *testing.T) {
	eng := enginetest.New(64, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	eng.TokenizeErr = errors.New("bad utf8")
	if _, err := c.PrepareEmbeds(context.Background(), "hello"); !errors.Is(err, ErrTokenizationFailed) {
		t.Fatalf("expected ErrTokenizationFailed, got %v", err)
	}

	eng.TokenizeErr = nil
	eng.NegativeN = 120

	_, err := c.PrepareEmbeds(context.Background(), "hello")
	if !errors.Is(err, ErrTokenizationFailed) {
		t.Fatalf("expected ErrTokenizationFailed, got %v", err)
	}

	var tce *engine.TokenCountError
	if !errors.As(err, &tce) || tce.Required != 120 {
		t.Fatalf("expected the token count error to be kept, got %v", err)
	}

	checkInvariant(t, c)
}

func Test_CancelDuringPrepare(t *testing.T) {
	eng := enginetest.New(64, words...)
	m := newModel(t, eng)
	c := newContext(t, m)

	if _, err := c.PrepareEmbeds(context.Background(), "hello"); err != nil {
		t.Fatalf("prepare: %s", err)
	}

	before, _ := c.Tokens(context.Background())

	eng.OnEvaluate = func(tokens []engine.Token, pos int) {
		c.Cancel()
	}

	if _, err := c.PrepareEmbeds(context.Background(), "a b c"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	eng.OnEvaluate = nil

	after, _ := c.Tokens(context.Background())
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("cancelled prepare changed the history (-exp +got):\n%s", diff)
	}

	checkInvariant(t, c)

	// The engine holds a stale token past the history, the next prompt
	// overwrites it.
	if _, err := c.PrepareEmbeds(context.Background(), "world"); err != nil {
		t.Fatalf("prepare: %s", err)
	}

	tokens, _ := c.Tokens(context.Background())
	if diff := cmp.Diff(tokens, eng.Contexts()[0].Cache()); diff != "" {
		t.Fatalf("engine cache doesn't match the history (-exp +got):\n%s", diff)
	}
}

func Test_PrefixSuffix(t *testing.T) {
	eng := enginetest.New(64, words...)
	m := newModel(t, eng)
	c := newContext(t, m, WithPrefix("sys"))

	if err := c.SetSuffix(context.Background(), "end"); err != nil {
		t.Fatalf("set suffix: %s", err)
	}

	if _, err := c.PrepareEmbeds(context.Background(), "hello"); err != nil {
		t.Fatalf("prepare: %s", err)
	}

	tokens, _ := c.Tokens(context.Background())

	exp := []engine.Token{enginetest.TokenBOS, eng.Token("sys"), eng.Token("hello"), eng.Token("end")}
	if diff := cmp.Diff(exp, tokens); diff != "" {
		t.Fatalf("wrong tokens (-exp +got):\n%s", diff)
	}

	prefix, _ := c.Prefix(context.Background())
	suffix, _ := c.Suffix(context.Background())
	if prefix != "sys" || suffix != "end" {
		t.Fatalf("expected sys/end, got %s/%s", prefix, suffix)
	}

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %s", err)
	}

	if tokens, _ := c.Tokens(context.Background()); len(tokens) != 0 {
		t.Fatalf("expected an empty history after reset, got %d tokens", len(tokens))
	}
}
