package transfer

import (
	"math/rand"
	"time"
)

// BackoffConfig defines retransmit delay growth across retry attempts.
// A zero InitialDelay disables the policy; a Multiplier below 1 is
// treated as flat.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay returns the retransmit interval before attempt n (1-based).
// With Jitter the interval is scaled by a factor in [0.5, 1.5).
func (c BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}
	if c.Jitter {
		scale := 0.5
		if rng != nil {
			scale += rng.Float64()
		}
		d *= scale
	}
	return time.Duration(d)
}
