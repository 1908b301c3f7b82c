package aggregator

import (
	"math/rand"
	"sync"
)

// Jitter perturbs provider weights. Factor is drawn once per provider per
// merge, in registration order.
type Jitter interface {
	Factor(provider string) float64
}

type NoJitter struct{}

func (NoJitter) Factor(string) float64 {
	return 1
}

// SeededJitter yields factors uniformly in [1-amplitude, 1+amplitude]. The
// sequence is reproducible for a given seed.
type SeededJitter struct {
	rng       *rand.Rand
	amplitude float64
	mu        sync.Mutex
}

func NewSeededJitter(seed int64, amplitude float64) *SeededJitter {
	if amplitude < 0 {
		amplitude = 0
	}
	if amplitude > 1 {
		amplitude = 1
	}
	return &SeededJitter{
		rng:       rand.New(rand.NewSource(seed)),
		amplitude: amplitude,
	}
}

func (j *SeededJitter) Factor(string) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return 1 - j.amplitude + 2*j.amplitude*j.rng.Float64()
}
