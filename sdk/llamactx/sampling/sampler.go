package sampling

import (
	"math/rand/v2"
	"time"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

const minKeep = 1

// Sampler selects tokens for a single answer. The mirostat state lives here
// so concurrent answers never share it.
type Sampler struct {
	params Params
	rng    *rand.Rand
	mu     float32
}

// New constructs a sampler for the specified params.
func New(params Params) *Sampler {
	seed := uint64(params.Seed)
	if params.Seed < 0 {
		seed = uint64(time.Now().UnixNano())
	}

	s := Sampler{
		params: params,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		mu:     2 * params.MirostatTau,
	}

	return &s
}

// Params returns the params the sampler was built with.
func (s *Sampler) Params() Params {
	return s.params
}

// Mu returns the current mirostat target.
func (s *Sampler) Mu() float32 {
	return s.mu
}

// Sample runs the pipeline over logits. history is the full token history of
// the context, nCtx its capacity, and newline the vocabulary's newline token.
func (s *Sampler) Sample(logits []float32, history []engine.Token, nCtx int, newline engine.Token) engine.Token {
	p := s.params
	c := NewCandidates(logits)

	// -------------------------------------------------------------------------
	// Penalties.

	var nlLogit float32
	nlIdx := int(newline)
	hasNL := nlIdx >= 0 && nlIdx < len(logits)
	if hasNL {
		nlLogit = logits[nlIdx]
	}

	window := penaltyWindow(history, p.RepeatLastN, nCtx)
	RepetitionPenalty(c, window, p.RepeatPenalty)
	FrequencyPresencePenalty(c, window, p.AlphaFrequency, p.AlphaPresence)

	// Candidates are still in id order here.
	if !p.PenalizeNewline && hasNL {
		c.Items[nlIdx].Logit = nlLogit
	}

	// -------------------------------------------------------------------------
	// Selection.

	switch {
	case p.Temperature <= 0:
		return Greedy(c)

	case p.Mirostat == MirostatV1:
		Temperature(c, p.Temperature)
		return SampleMirostat(c, s.rng, p.MirostatTau, p.MirostatEta, p.MirostatM, &s.mu)

	case p.Mirostat == MirostatV2:
		Temperature(c, p.Temperature)
		return SampleMirostatV2(c, s.rng, p.MirostatTau, p.MirostatEta, &s.mu)
	}

	TopK(c, p.TopK, minKeep)
	TailFree(c, p.TailFreeZ, minKeep)
	Typical(c, p.TypicalP, minKeep)
	TopP(c, p.TopP, minKeep)
	Temperature(c, p.Temperature)

	return Sample(c, s.rng)
}
