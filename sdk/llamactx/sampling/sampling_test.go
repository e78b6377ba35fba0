package sampling

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
	"github.com/google/go-cmp/cmp"
)

func logitsOf(c *Candidates) []float32 {
	out := make([]float32, c.Len())
	for i, cand := range c.Items {
		out[i] = cand.Logit
	}
	return out
}

func idsOf(c *Candidates) []engine.Token {
	out := make([]engine.Token, c.Len())
	for i, cand := range c.Items {
		out[i] = cand.ID
	}
	return out
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

// =============================================================================

func Test_GreedyArgmax(t *testing.T) {
	p := DefaultParams()
	p.Temperature = 0

	s := New(p)
	logits := []float32{-1, 5, 3, 7, 2}

	for i := range 5 {
		if tok := s.Sample(logits, nil, 16, 99); tok != 3 {
			t.Fatalf("call %d: expected token 3, got %d", i, tok)
		}
	}
}

func Test_Determinism(t *testing.T) {
	p := DefaultParams()
	p.Seed = 42
	p.Temperature = 1.2
	p.TopK = 0
	p.TopP = 1

	logits := []float32{1, 1.1, 0.9, 1.05, 0.95, 1.02}

	s1 := New(p)
	s2 := New(p)

	for i := range 20 {
		a := s1.Sample(logits, nil, 16, 99)
		b := s2.Sample(logits, nil, 16, 99)
		if a != b {
			t.Fatalf("call %d: expected deterministic sample, got %d vs %d", i, a, b)
		}
	}
}

func Test_RepetitionPenalty(t *testing.T) {
	c := NewCandidates([]float32{2, -2, 1})
	RepetitionPenalty(c, []engine.Token{0, 1, 1}, 2)

	exp := []float32{1, -4, 1}
	if diff := cmp.Diff(exp, logitsOf(c)); diff != "" {
		t.Fatalf("wrong logits after penalty (-exp +got):\n%s", diff)
	}
}

func Test_FrequencyPresencePenalty(t *testing.T) {
	c := NewCandidates([]float32{1, 1, 1})
	FrequencyPresencePenalty(c, []engine.Token{0, 0, 1}, 0.5, 0.25)

	exp := []float32{-0.25, 0.25, 1}
	if diff := cmp.Diff(exp, logitsOf(c)); diff != "" {
		t.Fatalf("wrong logits after penalty (-exp +got):\n%s", diff)
	}
}

func Test_PenaltyWindow(t *testing.T) {
	history := []engine.Token{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tt := []struct {
		name  string
		lastN int
		nCtx  int
		exp   []engine.Token
	}{
		{"last-n", 3, 16, []engine.Token{8, 9, 10}},
		{"whole-context", -1, 4, []engine.Token{7, 8, 9, 10}},
		{"disabled", 0, 16, nil},
		{"longer-than-history", 64, 4096, history},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			got := penaltyWindow(history, tst.lastN, tst.nCtx)
			if diff := cmp.Diff(tst.exp, got); diff != "" {
				t.Fatalf("wrong window (-exp +got):\n%s", diff)
			}
		})
	}
}

func Test_NewlineRestore(t *testing.T) {
	const newline engine.Token = 1

	logits := []float32{1, 3, 2.5}
	history := []engine.Token{newline}

	p := DefaultParams()
	p.Temperature = 0
	p.RepeatPenalty = 2

	p.PenalizeNewline = false
	if tok := New(p).Sample(logits, history, 16, newline); tok != newline {
		t.Fatalf("expected the restored newline token, got %d", tok)
	}

	p.PenalizeNewline = true
	if tok := New(p).Sample(logits, history, 16, newline); tok != 2 {
		t.Fatalf("expected the penalized newline to lose, got %d", tok)
	}
}

func Test_TopK(t *testing.T) {
	c := NewCandidates([]float32{1, 4, 2, 3})
	TopK(c, 2, 1)

	exp := []engine.Token{1, 3}
	if diff := cmp.Diff(exp, idsOf(c)); diff != "" {
		t.Fatalf("wrong candidates (-exp +got):\n%s", diff)
	}
}

func Test_TopP(t *testing.T) {
	c := NewCandidates([]float32{10, 0, 0, 0, 0})
	TopP(c, 0.5, 1)

	if diff := cmp.Diff([]engine.Token{0}, idsOf(c)); diff != "" {
		t.Fatalf("wrong candidates (-exp +got):\n%s", diff)
	}
}

func logitsFromProbs(probs ...float64) []float32 {
	out := make([]float32, len(probs))
	for i, p := range probs {
		out[i] = float32(math.Log(p))
	}
	return out
}

func sortedIDs(c *Candidates) []engine.Token {
	ids := idsOf(c)
	slices.Sort(ids)
	return ids
}

func Test_TailFree(t *testing.T) {
	// Second derivatives of the sorted probabilities normalize to
	// {0, 0.5, 0.357, 0.143}.
	logits := logitsFromProbs(0.3, 0.28, 0.26, 0.1, 0.04, 0.02)

	tests := []struct {
		name    string
		z       float32
		minKeep int
		exp     []engine.Token
	}{
		{"z-0.4", 0.4, 1, []engine.Token{0}},
		{"z-0.6", 0.6, 1, []engine.Token{0, 1}},
		{"z-0.9", 0.9, 1, []engine.Token{0, 1, 2}},
		{"disabled", 1.0, 1, []engine.Token{0, 1, 2, 3, 4, 5}},
		{"min-keep", 0.4, 2, []engine.Token{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCandidates(logits)
			TailFree(c, tt.z, tt.minKeep)

			if diff := cmp.Diff(tt.exp, idsOf(c)); diff != "" {
				t.Fatalf("wrong candidates (-exp +got):\n%s", diff)
			}
		})
	}
}

func Test_Typical(t *testing.T) {
	// Entropy is 1.2206 nats. Tokens 1 and 2 sit closest to it, then 0,
	// then 3.
	logits := logitsFromProbs(0.5, 0.2, 0.2, 0.1)

	tests := []struct {
		name    string
		p       float32
		minKeep int
		exp     []engine.Token
	}{
		{"p-0.3", 0.3, 1, []engine.Token{1, 2}},
		{"p-0.5", 0.5, 1, []engine.Token{0, 1, 2}},
		{"p-0.95", 0.95, 1, []engine.Token{0, 1, 2, 3}},
		{"disabled", 1.0, 1, []engine.Token{0, 1, 2, 3}},
		{"min-keep", 0.3, 3, []engine.Token{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCandidates(logits)
			Typical(c, tt.p, tt.minKeep)

			if diff := cmp.Diff(tt.exp, sortedIDs(c)); diff != "" {
				t.Fatalf("wrong candidates (-exp +got):\n%s", diff)
			}
		})
	}
}

func Test_Softmax(t *testing.T) {
	c := NewCandidates([]float32{0, 0, 0, 0})
	Softmax(c)

	for _, cand := range c.Items {
		if !approx(cand.P, 0.25) {
			t.Fatalf("expected uniform probability 0.25, got %f", cand.P)
		}
	}
}

func Test_FiltersNeverEmpty(t *testing.T) {
	filters := []struct {
		name string
		fn   func(c *Candidates)
	}{
		{"top-k", func(c *Candidates) { TopK(c, 1, minKeep) }},
		{"top-p", func(c *Candidates) { TopP(c, 0, minKeep) }},
		{"tail-free", func(c *Candidates) { TailFree(c, 0, minKeep) }},
		{"typical", func(c *Candidates) { Typical(c, 0, minKeep) }},
	}

	inputs := [][]float32{
		{10, 0, 0, 0},
		{1, 2, 3, 4, 5, 6, 7, 8},
		{0.5},
		{-3, -3, -3},
	}

	for _, f := range filters {
		t.Run(f.name, func(t *testing.T) {
			for _, logits := range inputs {
				c := NewCandidates(logits)
				f.fn(c)

				if c.Len() < minKeep {
					t.Fatalf("filter emptied the candidates for %v", logits)
				}
			}
		})
	}
}

func Test_SampleMirostatV2Update(t *testing.T) {
	const tau = 5
	const eta = 0.1

	c := NewCandidates([]float32{10, 0, 0})
	mu := float32(2 * tau)
	rng := rand.New(rand.NewPCG(1, 2))

	tok := SampleMirostatV2(c, rng, tau, eta, &mu)
	if tok != 0 {
		t.Fatalf("expected token 0, got %d", tok)
	}

	if c.Len() != 1 {
		t.Fatalf("expected the high surprise candidates to be dropped, got %d left", c.Len())
	}

	// The only candidate left has probability 1 and a surprise of 0.
	if !approx(mu, 2*tau+eta*tau) {
		t.Fatalf("expected mu %f, got %f", float32(2*tau+eta*tau), mu)
	}
}

func Test_MirostatV1(t *testing.T) {
	p := DefaultParams()
	p.Seed = 7
	p.Mirostat = MirostatV1

	logits := make([]float32, 200)
	for i := range logits {
		logits[i] = float32(len(logits)-i) / 20
	}

	s := New(p)
	start := s.Mu()

	if start != 2*p.MirostatTau {
		t.Fatalf("expected mu to start at %f, got %f", 2*p.MirostatTau, start)
	}

	tok := s.Sample(logits, nil, 512, 199)
	if int(tok) < 0 || int(tok) >= len(logits) {
		t.Fatalf("token out of range: %d", tok)
	}

	if s.Mu() == start {
		t.Fatal("expected mu to be updated")
	}
}

func Test_Validate(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("default params should be valid: %s", err)
	}

	p.Mirostat = 3
	if err := p.Validate(); err == nil {
		t.Fatal("expected an error for mirostat 3")
	}

	for _, penalty := range []float32{0, -1} {
		p := DefaultParams()
		p.RepeatPenalty = penalty
		if err := p.Validate(); err == nil {
			t.Fatalf("expected an error for repeat penalty %f", penalty)
		}
	}
}

func Test_RepetitionPenaltyNonPositive(t *testing.T) {
	logits := []float32{2, -1, 0.5}

	for _, penalty := range []float32{0, -2} {
		c := NewCandidates(logits)
		RepetitionPenalty(c, []engine.Token{0, 1}, penalty)

		if diff := cmp.Diff(logits, logitsOf(c)); diff != "" {
			t.Fatalf("penalty %f changed the logits (-exp +got):\n%s", penalty, diff)
		}
	}
}
