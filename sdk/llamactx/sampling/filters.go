package sampling

import (
	"math"
	"slices"
)

// TopK keeps the k candidates with the highest logits. A k of 0 or less
// keeps everything. At least minKeep candidates survive.
func TopK(c *Candidates, k int, minKeep int) {
	if k <= 0 {
		k = c.Len()
	}

	k = min(max(k, minKeep), c.Len())

	c.sort()
	c.Items = c.Items[:k]
}

// TopP keeps the smallest prefix of the sorted candidates whose cumulative
// probability reaches p.
func TopP(c *Candidates, p float32, minKeep int) {
	if p >= 1 || c.Len() == 0 {
		return
	}

	Softmax(c)

	var cum float32
	last := c.Len()

	for i, cand := range c.Items {
		cum += cand.P

		if cum >= p && i+1 >= minKeep {
			last = i + 1
			break
		}
	}

	c.Items = c.Items[:last]
}

// TailFree cuts the tail of the distribution where the normalized second
// derivative of the sorted probabilities accumulates past z.
func TailFree(c *Candidates, z float32, minKeep int) {
	if z >= 1 || c.Len() <= 2 {
		return
	}

	Softmax(c)

	first := make([]float32, c.Len()-1)
	for i := range first {
		first[i] = c.Items[i].P - c.Items[i+1].P
	}

	second := make([]float32, len(first)-1)
	for i := range second {
		second[i] = float32(math.Abs(float64(first[i] - first[i+1])))
	}

	var sum float32
	for _, v := range second {
		sum += v
	}

	if sum == 0 {
		return
	}

	for i := range second {
		second[i] /= sum
	}

	var cum float32
	last := c.Len()

	for i, v := range second {
		cum += v

		if cum > z && i >= minKeep {
			last = i
			break
		}
	}

	c.Items = c.Items[:max(last, minKeep)]
}

// Typical keeps the candidates whose surprise is closest to the entropy of
// the distribution until their cumulative probability exceeds p.
func Typical(c *Candidates, p float32, minKeep int) {
	if p >= 1 || c.Len() == 0 {
		return
	}

	Softmax(c)

	var entropy float64
	for _, cand := range c.Items {
		if cand.P > 0 {
			entropy -= float64(cand.P) * math.Log(float64(cand.P))
		}
	}

	shifted := make([]float64, c.Len())
	for i, cand := range c.Items {
		shifted[i] = math.Abs(-math.Log(float64(cand.P)) - entropy)
	}

	indices := make([]int, c.Len())
	for i := range indices {
		indices[i] = i
	}

	slices.SortStableFunc(indices, func(a, b int) int {
		switch {
		case shifted[a] < shifted[b]:
			return -1
		case shifted[a] > shifted[b]:
			return 1
		}
		return 0
	})

	var cum float32
	last := len(indices)

	for i, idx := range indices {
		cum += c.Items[idx].P

		if cum > p && i >= minKeep-1 {
			last = i + 1
			break
		}
	}

	items := make([]Candidate, last)
	for i := range last {
		items[i] = c.Items[indices[i]]
	}

	c.Items = items
	c.Sorted = false
}

// Temperature divides every logit by temp.
func Temperature(c *Candidates, temp float32) {
	for i := range c.Items {
		c.Items[i].Logit /= temp
	}
}
