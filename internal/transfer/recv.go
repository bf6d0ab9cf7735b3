package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotproto/lot/internal/bitmap"
	"github.com/lotproto/lot/internal/wire"
)

// recvSession reassembles one inbound object window by window. Incoming
// blocks land in a window-sized buffer; a bitmap over the block-numbering
// space records what has arrived; the ACK timer debounces partial-window
// acknowledgments.
type recvSession struct {
	mu     sync.Mutex
	id     uint16
	handle Handle
	status Status
	code   ErrorCode

	params Params
	tr     Transport
	log    zerolog.Logger
	notify func(Event)
	onData DataFunc

	baseline int
	cursor   int
	window   []byte
	bits     *bitmap.Bitmap

	haveLast  bool
	lastIndex int
	lastLen   int
	delivered int

	retriesLeft uint16

	timerGen uint32
	ackTimer *time.Timer
	expiry   *time.Timer
}

func newRecvSession(h Handle, id uint16, params Params, tr Transport, log zerolog.Logger, onData DataFunc, notify func(Event)) *recvSession {
	return &recvSession{
		id:          id,
		handle:      h,
		status:      StatusInProgress,
		params:      params,
		tr:          tr,
		log:         log.With().Str("dir", "recv").Uint16("session", id).Logger(),
		notify:      notify,
		onData:      onData,
		window:      make([]byte, params.WindowBytes()),
		bits:        bitmap.New(params.NumBlocks()),
		retriesLeft: params.MaxRetransmissions,
	}
}

func (r *recvSession) startExpiry() {
	r.expiry = time.AfterFunc(r.params.SessionExpiry, func() {
		if ev := r.expired(); ev != nil && r.notify != nil {
			r.notify(*ev)
		}
	})
}

// handleBlock is the block-arrived entry point. Duplicate blocks of the
// current window are idempotent; blocks of the previously acknowledged
// window trigger a duplicate empty ACK so a lost acknowledgment does not
// strand the sender.
func (r *recvSession) handleBlock(b wire.Block) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusInProgress {
		// A block arriving after completion means the final window's ACK
		// was lost and the sender is re-driving blocks we already
		// delivered. Repeat the empty ACK so it can finish instead of
		// exhausting its retries.
		if r.status == StatusComplete {
			r.log.Debug().Uint16("block", b.BlockNum).Msg("block for completed session, repeating final ack")
			if err := r.sendAck(CodeNone, nil); err != nil {
				r.log.Warn().Err(err).Msg("duplicate final ack send failed")
			}
		}
		return nil
	}

	nb := r.params.NumBlocks()
	w := int(r.params.WindowSize)
	idx := (int(b.BlockNum) - r.cursor + nb) % nb
	if idx >= w {
		// Retransmit of the window we already acknowledged. If our ACK
		// was lost the sender is stuck on it, so repeat the empty ACK.
		// Once the next window starts arriving the sender demonstrably
		// has the ACK and the block is a late duplicate to drop.
		if r.windowEmpty() {
			r.log.Debug().Uint16("block", b.BlockNum).Msg("stale block, repeating window ack")
			if err := r.sendAck(CodeNone, nil); err != nil {
				r.log.Warn().Err(err).Msg("duplicate ack send failed")
			}
		} else {
			r.log.Debug().Uint16("block", b.BlockNum).Msg("dropping stale block")
		}
		return nil
	}

	blockLen := r.params.BlockPayload()
	last := b.Last()
	if len(b.Payload) > blockLen || (!last && len(b.Payload) != blockLen) {
		r.log.Warn().Uint16("block", b.BlockNum).Int("len", len(b.Payload)).Msg("dropping block with bad payload length")
		return nil
	}

	copy(r.window[idx*blockLen:], b.Payload)
	r.bits.Set(int(b.BlockNum))
	if last {
		r.haveLast = true
		r.lastIndex = idx
		r.lastLen = len(b.Payload)
	}

	if r.windowDone() {
		return r.finishWindow()
	}
	r.armAck()
	return nil
}

// windowEmpty reports whether no block of the current window has arrived.
func (r *recvSession) windowEmpty() bool {
	nb := r.params.NumBlocks()
	for i := 0; i < int(r.params.WindowSize); i++ {
		if r.bits.IsSet((r.cursor + i) % nb) {
			return false
		}
	}
	return true
}

// windowDone reports whether every expected block of the current window
// has arrived. The last-block flag shortens the expectation.
func (r *recvSession) windowDone() bool {
	nb := r.params.NumBlocks()
	expected := int(r.params.WindowSize)
	if r.haveLast {
		expected = r.lastIndex + 1
	}
	for i := 0; i < expected; i++ {
		if !r.bits.IsSet((r.cursor + i) % nb) {
			return false
		}
	}
	return true
}

// finishWindow acknowledges the complete window, delivers the buffered
// bytes in offset order, and advances the cursor exactly as the sender
// does on an empty-bitmap ACK.
func (r *recvSession) finishWindow() *Event {
	r.stopAck()
	if err := r.sendAck(CodeNone, nil); err != nil {
		// Sender's retransmit timer re-drives the window; the stale
		// blocks then provoke a duplicate ACK.
		r.log.Warn().Err(err).Msg("window ack send failed")
	}

	blockLen := r.params.BlockPayload()
	length := r.params.WindowBytes()
	if r.haveLast {
		length = r.lastIndex*blockLen + r.lastLen
	}
	offset := r.baseline + r.cursor*blockLen
	if r.onData != nil {
		r.onData(offset, r.window[:length])
	}
	r.delivered += length

	r.cursor = (r.cursor + int(r.params.WindowSize)) % r.params.NumBlocks()
	if r.cursor == 0 {
		r.baseline += r.params.CycleBytes()
	}
	r.bits.Clear()
	r.retriesLeft = r.params.MaxRetransmissions

	if r.haveLast {
		return r.complete()
	}
	return nil
}

// ackFired requests retransmission of the blocks still missing from the
// current window.
func (r *recvSession) ackFired(gen uint32) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.timerGen || r.status != StatusInProgress {
		return nil
	}
	if r.retriesLeft == 0 {
		r.log.Warn().Msg("window never completed, giving up")
		return r.fail(CodeTimedOut)
	}
	r.retriesLeft--

	nb := r.params.NumBlocks()
	expected := int(r.params.WindowSize)
	if r.haveLast {
		expected = r.lastIndex + 1
	}
	missing := make([]byte, r.params.BitmapLen())
	count := 0
	for i := 0; i < expected; i++ {
		abs := (r.cursor + i) % nb
		if !r.bits.IsSet(abs) {
			missing[abs>>3] |= 1 << (abs & 7)
			count++
		}
	}
	r.log.Debug().Int("missing", count).Msg("requesting retransmission")
	if err := r.sendAck(CodeNone, missing); err != nil {
		r.log.Warn().Err(err).Msg("bitmap ack send failed")
	}
	r.armAck()
	return nil
}

func (r *recvSession) sendAck(code ErrorCode, missing []byte) error {
	frame := wire.EncodeAck(r.id, byte(code), missing)
	n, err := r.tr.Send(frame)
	if err != nil {
		return fmt.Errorf("%w: ack: %v", ErrNetwork, err)
	}
	if n < len(frame) {
		return fmt.Errorf("%w: ack: short write %d of %d", ErrNetwork, n, len(frame))
	}
	return nil
}

func (r *recvSession) expired() *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.terminal() {
		return nil
	}
	r.log.Warn().Msg("session expired")
	return r.fail(CodeExpired)
}

func (r *recvSession) abort() (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.terminal() {
		return nil, ErrSessionTerminal
	}
	return r.fail(CodeAborted), nil
}

func (r *recvSession) state() (Status, ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.code
}

func (r *recvSession) bytesDelivered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

func (r *recvSession) armAck() {
	r.timerGen++
	gen := r.timerGen
	if r.ackTimer != nil {
		r.ackTimer.Stop()
	}
	r.ackTimer = time.AfterFunc(r.params.AckTimeout, func() {
		if ev := r.ackFired(gen); ev != nil && r.notify != nil {
			r.notify(*ev)
		}
	})
}

func (r *recvSession) stopAck() {
	r.timerGen++
	if r.ackTimer != nil {
		r.ackTimer.Stop()
		r.ackTimer = nil
	}
}

func (r *recvSession) stopTimers() {
	r.stopAck()
	if r.expiry != nil {
		r.expiry.Stop()
		r.expiry = nil
	}
}

// fail reports the error code to the peer on a best-effort ACK before
// going terminal, so the sender fails fast instead of burning retries.
func (r *recvSession) fail(code ErrorCode) *Event {
	r.status = StatusFailed
	r.code = code
	r.stopTimers()
	if err := r.sendAck(code, nil); err != nil {
		r.log.Debug().Err(err).Msg("error ack send failed")
	}
	return &Event{Handle: r.handle, SessionID: r.id, Status: StatusFailed, Code: code}
}

func (r *recvSession) complete() *Event {
	r.status = StatusComplete
	r.stopTimers()
	r.log.Info().Int("bytes", r.delivered).Msg("object fully received")
	return &Event{Handle: r.handle, SessionID: r.id, Status: StatusComplete}
}
