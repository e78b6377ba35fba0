package sampling

import (
	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

// RepetitionPenalty penalizes every candidate that appears in lastTokens.
// Positive logits are divided by the penalty and the rest are multiplied so
// the penalty always makes a token less likely.
func RepetitionPenalty(c *Candidates, lastTokens []engine.Token, penalty float32) {
	if len(lastTokens) == 0 || penalty == 1 || penalty <= 0 {
		return
	}

	seen := make(map[engine.Token]struct{}, len(lastTokens))
	for _, tok := range lastTokens {
		seen[tok] = struct{}{}
	}

	for i := range c.Items {
		if _, exists := seen[c.Items[i].ID]; !exists {
			continue
		}

		switch {
		case c.Items[i].Logit <= 0:
			c.Items[i].Logit *= penalty
		default:
			c.Items[i].Logit /= penalty
		}
	}

	c.Sorted = false
}

// FrequencyPresencePenalty subtracts count*alphaFrequency plus alphaPresence
// from the logit of every candidate seen in lastTokens.
func FrequencyPresencePenalty(c *Candidates, lastTokens []engine.Token, alphaFrequency float32, alphaPresence float32) {
	if len(lastTokens) == 0 || (alphaFrequency == 0 && alphaPresence == 0) {
		return
	}

	counts := make(map[engine.Token]int, len(lastTokens))
	for _, tok := range lastTokens {
		counts[tok]++
	}

	for i := range c.Items {
		count, exists := counts[c.Items[i].ID]
		if !exists {
			continue
		}

		c.Items[i].Logit -= float32(count)*alphaFrequency + alphaPresence
	}

	c.Sorted = false
}

// penaltyWindow returns the tail of history the penalties look at.
func penaltyWindow(history []engine.Token, lastN int, nCtx int) []engine.Token {
	if lastN < 0 {
		lastN = nCtx
	}

	n := min(len(history), lastN)
	if nCtx > 0 {
		n = min(n, nCtx)
	}

	if n <= 0 {
		return nil
	}

	return history[len(history)-n:]
}
