package sampling

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

// Candidate is one vocabulary entry considered for selection.
type Candidate struct {
	ID    engine.Token
	Logit float32
	P     float32
}

// Candidates is the working set the filters operate on. Sorted is true when
// Items is ordered by descending logit.
type Candidates struct {
	Items  []Candidate
	Sorted bool
}

// NewCandidates builds one candidate per logit in vocabulary id order.
func NewCandidates(logits []float32) *Candidates {
	items := make([]Candidate, len(logits))
	for i, l := range logits {
		items[i] = Candidate{ID: engine.Token(i), Logit: l}
	}

	return &Candidates{Items: items}
}

// Len returns the number of candidates left.
func (c *Candidates) Len() int {
	return len(c.Items)
}

func (c *Candidates) sort() {
	if c.Sorted {
		return
	}

	slices.SortStableFunc(c.Items, func(a, b Candidate) int {
		switch {
		case a.Logit > b.Logit:
			return -1
		case a.Logit < b.Logit:
			return 1
		}
		return 0
	})

	c.Sorted = true
}

// Softmax sorts the candidates by logit and computes their probabilities.
func Softmax(c *Candidates) {
	if c.Len() == 0 {
		return
	}

	c.sort()

	maxL := c.Items[0].Logit

	var sum float64
	for i := range c.Items {
		p := math.Exp(float64(c.Items[i].Logit - maxL))
		c.Items[i].P = float32(p)
		sum += p
	}

	for i := range c.Items {
		c.Items[i].P = float32(float64(c.Items[i].P) / sum)
	}
}

// Greedy returns the candidate with the highest logit.
func Greedy(c *Candidates) engine.Token {
	best := 0
	for i := 1; i < c.Len(); i++ {
		if c.Items[i].Logit > c.Items[best].Logit {
			best = i
		}
	}

	return c.Items[best].ID
}

// Sample draws a token from the softmax distribution of the candidates.
func Sample(c *Candidates, rng *rand.Rand) engine.Token {
	Softmax(c)

	r := float32(rng.Float64())

	var cum float32
	for _, cand := range c.Items {
		cum += cand.P
		if r < cum {
			return cand.ID
		}
	}

	return c.Items[c.Len()-1].ID
}

func (c *Candidates) find(id engine.Token) int {
	for i, cand := range c.Items {
		if cand.ID == id {
			return i
		}
	}

	return -1
}
