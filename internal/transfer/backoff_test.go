package transfer

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffDelayFlatMultiplier(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1.0}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := cfg.Delay(attempt, nil); got != time.Second {
			t.Fatalf("attempt%d got=%v", attempt, got)
		}
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := cfg.Delay(2, rng)
	if got < 250*time.Millisecond || got > 750*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestBackoffDelayZeroInitialDisabled(t *testing.T) {
	cfg := BackoffConfig{Multiplier: 2.0}
	if got := cfg.Delay(3, nil); got != 0 {
		t.Fatalf("got=%v, want 0", got)
	}
}

func TestRetransmitDelayDefaultsToTwiceAckTimeout(t *testing.T) {
	p := DefaultParams()
	p.AckTimeout = 100 * time.Millisecond
	p.Backoff = BackoffConfig{}
	if got := p.retransmitDelay(1); got != 200*time.Millisecond {
		t.Fatalf("delay=%v, want 200ms", got)
	}
}
