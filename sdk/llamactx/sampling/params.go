// Package sampling turns a logits vector into the next token using penalties,
// truncation filters, temperature scaling, and the mirostat controllers.
package sampling

import (
	"fmt"
)

const (
	defTemperature     = 0.80
	defTopP            = 0.95
	defTopK            = 40
	defTailFreeZ       = 1.0
	defTypicalP        = 1.0
	defRepeatPenalty   = 1.10
	defRepeatLastN     = 64
	defMirostatTau     = 5.0
	defMirostatEta     = 0.1
	defMirostatM       = 100
	defPenalizeNewline = true
	defSeed            = -1
)

// Mirostat modes.
const (
	MirostatOff = 0
	MirostatV1  = 1
	MirostatV2  = 2
)

// Params represents the values that control how the next token is selected.
//
// Temperature scales the logits before sampling. Values at or below 0 select
// the most likely token every time.
//
// TopP keeps the smallest set of candidates whose cumulative probability
// reaches this value. 1.0 disables it.
//
// TopK keeps the K most likely candidates. 0 or less disables it.
//
// TailFreeZ removes the tail of the distribution using the second derivative
// of the sorted probabilities. 1.0 disables it.
//
// TypicalP keeps candidates whose surprise is closest to the entropy of the
// distribution until this much probability mass is collected. 1.0 disables
// it.
//
// RepeatPenalty divides the positive logits (and multiplies the negative
// logits) of tokens seen in the last RepeatLastN tokens of history. 1.0
// disables it. A RepeatLastN below 0 uses the whole context.
//
// AlphaFrequency and AlphaPresence subtract count*AlphaFrequency and
// AlphaPresence from the logit of every token seen in the same window.
//
// Mirostat selects the adaptive sampler: 0 is off, 1 is mirostat and 2 is
// mirostat 2.0. MirostatTau is the target surprise, MirostatEta the learning
// rate and MirostatM the number of tokens used to estimate s_hat in mode 1.
//
// PenalizeNewline allows the penalties to change the newline token. When
// false its logit is restored after the penalties are applied.
//
// Seed initializes the random source. A negative value picks a random seed.
type Params struct {
	Temperature     float32 `json:"temperature" yaml:"temperature"`
	TopP            float32 `json:"top_p" yaml:"top_p"`
	TopK            int     `json:"top_k" yaml:"top_k"`
	TailFreeZ       float32 `json:"tfs_z" yaml:"tfs_z"`
	TypicalP        float32 `json:"typical_p" yaml:"typical_p"`
	RepeatPenalty   float32 `json:"repeat_penalty" yaml:"repeat_penalty"`
	RepeatLastN     int     `json:"repeat_last_n" yaml:"repeat_last_n"`
	AlphaFrequency  float32 `json:"frequency_penalty" yaml:"frequency_penalty"`
	AlphaPresence   float32 `json:"presence_penalty" yaml:"presence_penalty"`
	Mirostat        int     `json:"mirostat" yaml:"mirostat"`
	MirostatTau     float32 `json:"mirostat_tau" yaml:"mirostat_tau"`
	MirostatEta     float32 `json:"mirostat_eta" yaml:"mirostat_eta"`
	MirostatM       int     `json:"mirostat_m" yaml:"mirostat_m"`
	PenalizeNewline bool    `json:"penalize_nl" yaml:"penalize_nl"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

// DefaultParams returns the default sampling values.
func DefaultParams() Params {
	return Params{
		Temperature:     defTemperature,
		TopP:            defTopP,
		TopK:            defTopK,
		TailFreeZ:       defTailFreeZ,
		TypicalP:        defTypicalP,
		RepeatPenalty:   defRepeatPenalty,
		RepeatLastN:     defRepeatLastN,
		Mirostat:        MirostatOff,
		MirostatTau:     defMirostatTau,
		MirostatEta:     defMirostatEta,
		MirostatM:       defMirostatM,
		PenalizeNewline: defPenalizeNewline,
		Seed:            defSeed,
	}
}

// Validate checks the params for values the pipeline can't work with.
func (p Params) Validate() error {
	switch p.Mirostat {
	case MirostatOff, MirostatV1, MirostatV2:
	default:
		return fmt.Errorf("validate: mirostat must be 0, 1 or 2, got %d", p.Mirostat)
	}

	if p.RepeatPenalty <= 0 {
		return fmt.Errorf("validate: repeat penalty must be > 0, got %f", p.RepeatPenalty)
	}

	if p.Mirostat == MirostatV1 && p.MirostatM <= 0 {
		return fmt.Errorf("validate: mirostat m must be > 0, got %d", p.MirostatM)
	}

	return nil
}
