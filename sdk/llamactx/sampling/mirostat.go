package sampling

import (
	"math"
	"math/rand/v2"

	"github.com/ardanlabs/llamactx/sdk/llamactx/engine"
)

// SampleMirostat estimates the Zipf exponent from the top m candidates, derives
// the top-k that targets a surprise of tau, samples, and moves mu towards
// tau by eta.
func SampleMirostat(c *Candidates, rng *rand.Rand, tau float32, eta float32, m int, mu *float32) engine.Token {
	n := float64(c.Len())

	Softmax(c)

	var sumTiBi, sumTiSq float64
	for i := 0; i < m-1 && i < c.Len()-1; i++ {
		ti := math.Log(float64(i+2) / float64(i+1))
		bi := math.Log(float64(c.Items[i].P) / float64(c.Items[i+1].P))
		sumTiBi += ti * bi
		sumTiSq += ti * ti
	}

	k := n
	if sumTiSq > 0 {
		sHat := sumTiBi / sumTiSq
		epsHat := sHat - 1
		k = math.Pow((epsHat*math.Pow(2, float64(*mu)))/(1-math.Pow(n, -epsHat)), 1/sHat)
	}

	switch {
	case math.IsNaN(k) || math.IsInf(k, 0) || k > n:
		k = n
	case k < 1:
		k = 1
	}

	TopK(c, int(k), 1)

	tok := Sample(c, rng)
	updateMu(c, tok, tau, eta, mu)

	return tok
}

// SampleMirostatV2 drops every candidate whose surprise exceeds mu, samples, and
// moves mu towards tau by eta.
func SampleMirostatV2(c *Candidates, rng *rand.Rand, tau float32, eta float32, mu *float32) engine.Token {
	Softmax(c)

	size := c.Len()
	for i, cand := range c.Items {
		if surprise(cand.P) > *mu {
			size = i
			break
		}
	}

	c.Items = c.Items[:max(size, 1)]
	Softmax(c)

	tok := Sample(c, rng)
	updateMu(c, tok, tau, eta, mu)

	return tok
}

func updateMu(c *Candidates, tok engine.Token, tau float32, eta float32, mu *float32) {
	idx := c.find(tok)
	if idx < 0 {
		return
	}

	observed := surprise(c.Items[idx].P)
	*mu -= eta * (observed - tau)
}

func surprise(p float32) float32 {
	return float32(-math.Log2(float64(p)))
}
