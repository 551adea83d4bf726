package splash

import (
	"errors"
	"math/rand/v2"
)

var ErrNoCandidates = errors.New("No valid configs candidates")

// SelectByWeight picks one config with probability weight/total. Weights
// default to 1. rnd must return values in [0, 1); nil uses math/rand/v2.
func SelectByWeight(candidates []SplashConfig, rnd func() float64) (SplashConfig, error) {
	survivors := make([]SplashConfig, 0, len(candidates))
	for _, c := range candidates {
		if c.ImageURL != "" {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		return SplashConfig{}, ErrNoCandidates
	}
	if rnd == nil {
		rnd = rand.Float64
	}

	total := 0.0
	for _, c := range survivors {
		total += c.EffectiveWeight()
	}

	r := rnd() * total
	for _, c := range survivors {
		w := c.EffectiveWeight()
		if r < w {
			return c, nil
		}
		r -= w
	}

	// rounding left no winner
	return survivors[len(survivors)-1], nil
}
