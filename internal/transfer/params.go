package transfer

import (
	"fmt"
	"time"

	"github.com/lotproto/lot/internal/wire"
)

// Params are the per-context transfer parameters, fixed for the lifetime
// of every session created under a Context. On the wire they travel in
// the START handshake so both peers derive identical window geometry.
type Params struct {
	// MTU is the largest frame the link carries. Block payload capacity
	// is MTU minus the block header.
	MTU uint16

	// WindowSize is the number of blocks in flight before an
	// acknowledgment is required. The block-numbering space is twice
	// this, so a retransmitted block is never mistaken for a
	// next-window block.
	WindowSize uint16

	// AckTimeout bounds how long the sender waits for an acknowledgment
	// before retransmitting, and how long the receiver debounces before
	// acknowledging a partial window.
	AckTimeout time.Duration

	// MaxRetransmissions is the per-window retry budget. A window is
	// transmitted at most 1+MaxRetransmissions times.
	MaxRetransmissions uint16

	// SessionExpiry caps total session lifetime regardless of retry
	// activity.
	SessionExpiry time.Duration

	// Backoff shapes the retransmit delay growth across attempts.
	Backoff BackoffConfig
}

// DefaultParams mirrors the flat retransmit cadence of the reference
// deployments: retransmit at twice the ack timeout, no growth.
func DefaultParams() Params {
	return Params{
		MTU:                512,
		WindowSize:         16,
		AckTimeout:         500 * time.Millisecond,
		MaxRetransmissions: 3,
		SessionExpiry:      60 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   1.0,
			MaxDelay:     time.Second,
		},
	}
}

func (p Params) Validate() error {
	if p.MTU <= wire.BlockHeaderLen {
		return fmt.Errorf("%w: mtu %d leaves no block payload", ErrInvalidParams, p.MTU)
	}
	if p.WindowSize < 1 {
		return fmt.Errorf("%w: window size %d", ErrInvalidParams, p.WindowSize)
	}
	if p.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout %v", ErrInvalidParams, p.AckTimeout)
	}
	if p.SessionExpiry <= 0 {
		return fmt.Errorf("%w: session expiry %v", ErrInvalidParams, p.SessionExpiry)
	}
	return nil
}

// BlockPayload is the byte capacity of one block.
func (p Params) BlockPayload() int { return int(p.MTU) - wire.BlockHeaderLen }

// NumBlocks is the size of the block-numbering space: twice the window,
// so consecutive windows occupy disjoint halves.
func (p Params) NumBlocks() int { return 2 * int(p.WindowSize) }

// BitmapLen is the wire length of a missing-blocks bitmap.
func (p Params) BitmapLen() int { return (p.NumBlocks() + 7) / 8 }

// WindowBytes is the reassembly buffer size for one window.
func (p Params) WindowBytes() int { return int(p.WindowSize) * p.BlockPayload() }

// CycleBytes is the object span covered by one full pass through the
// numbering space, i.e. the baseline advance after both halves are
// acknowledged.
func (p Params) CycleBytes() int { return p.NumBlocks() * p.BlockPayload() }

// retransmitDelay is the timer interval before retry attempt n (1-based).
func (p Params) retransmitDelay(attempt int) time.Duration {
	cfg := p.Backoff
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * p.AckTimeout
	}
	return cfg.Delay(attempt, nil)
}
