package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lotproto/lot/internal/bitmap"
	"github.com/lotproto/lot/internal/wire"
)

// sendSession drives one outbound object: window transmission, selective
// retransmission from ACK bitmaps, and the retransmit/expiry timers. The
// object bytes are caller-owned and must outlive the session.
type sendSession struct {
	mu     sync.Mutex
	id     uint16
	handle Handle
	status Status
	code   ErrorCode

	params Params
	tr     Transport
	log    zerolog.Logger
	notify func(Event)

	object   []byte
	baseline int
	cursor   int

	retriesLeft uint16
	attempt     int

	timerGen   uint32
	retransmit *time.Timer
	expiry     *time.Timer

	scratch []byte
}

func newSendSession(h Handle, id uint16, object []byte, params Params, tr Transport, log zerolog.Logger, notify func(Event)) *sendSession {
	return &sendSession{
		id:          id,
		handle:      h,
		status:      StatusInit,
		params:      params,
		tr:          tr,
		log:         log.With().Str("dir", "send").Uint16("session", id).Logger(),
		notify:      notify,
		object:      object,
		retriesLeft: params.MaxRetransmissions,
		scratch:     make([]byte, 0, int(params.MTU)),
	}
}

// start transitions to InProgress, transmits the first window and arms
// the timers. A transport failure here is not fatal: the retransmit
// timer re-drives the window.
func (s *sendSession) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusInProgress
	if err := s.sendWindow(false); err != nil {
		s.log.Warn().Err(err).Msg("initial window send failed")
	}
	s.armRetransmit()
	s.armExpiry()
}

// sendWindow transmits the current window. Block numbers occupy one half
// of the 2*windowSize numbering space; the final block of the object is
// flagged and ends the window early.
func (s *sendSession) sendWindow(resume bool) error {
	w := int(s.params.WindowSize)
	blockLen := s.params.BlockPayload()
	for i := 0; i < w; i++ {
		num := s.cursor + i
		off := s.baseline + num*blockLen
		length := blockLen
		last := false
		if off+length >= len(s.object) {
			length = len(s.object) - off
			last = true
		}
		if err := s.sendBlock(uint16(num), last, resume, s.object[off:off+length]); err != nil {
			return err
		}
		if last {
			break
		}
	}
	return nil
}

func (s *sendSession) sendBlock(num uint16, last, resume bool, payload []byte) error {
	var flags byte
	if last {
		flags |= wire.FlagLastBlock
	}
	if resume {
		flags |= wire.FlagResume
	}
	s.scratch = wire.AppendBlock(s.scratch[:0], s.id, num, flags, payload)
	n, err := s.tr.Send(s.scratch)
	if err != nil {
		return fmt.Errorf("%w: block %d: %v", ErrNetwork, num, err)
	}
	if n < len(s.scratch) {
		return fmt.Errorf("%w: block %d: short write %d of %d", ErrNetwork, num, n, len(s.scratch))
	}
	return nil
}

// resendMissing retransmits exactly the blocks the peer's bitmap marks
// missing. Bit positions are absolute block numbers in the 2*windowSize
// space.
func (s *sendSession) resendMissing(raw []byte) error {
	w := int(s.params.WindowSize)
	blockLen := s.params.BlockPayload()
	for i := 0; i < w; i++ {
		num := s.cursor + i
		off := s.baseline + num*blockLen
		length := blockLen
		last := false
		if off+length >= len(s.object) {
			length = len(s.object) - off
			last = true
		}
		if bitmap.IsSetIn(raw, num) {
			if err := s.sendBlock(uint16(num), last, false, s.object[off:off+length]); err != nil {
				return err
			}
		}
		if last {
			break
		}
	}
	return nil
}

// processAck is the ACK-arrived entry point. Returned events are emitted
// by the caller after the lock is released.
func (s *sendSession) processAck(ack wire.Ack) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress {
		return nil
	}
	s.stopRetransmit()

	if ack.Code != 0 {
		s.log.Warn().Str("code", ErrorCode(ack.Code).String()).Msg("peer reported error")
		return s.fail(ErrorCode(ack.Code))
	}

	if len(ack.Bitmap) > 0 {
		if len(ack.Bitmap) != s.params.BitmapLen() {
			s.log.Warn().Int("len", len(ack.Bitmap)).Int("want", s.params.BitmapLen()).Msg("bad bitmap length")
			return s.fail(CodeInvalidPacket)
		}
		if err := s.resendMissing(ack.Bitmap); err != nil {
			s.log.Warn().Err(err).Msg("selective retransmit failed")
		}
		s.armRetransmit()
		return nil
	}

	// Full window acknowledged: flip to the other half of the numbering
	// space; the byte baseline moves only after both halves complete.
	s.cursor = (s.cursor + int(s.params.WindowSize)) % s.params.NumBlocks()
	if s.cursor == 0 {
		s.baseline += s.params.CycleBytes()
	}

	if s.baseline+s.cursor*s.params.BlockPayload() >= len(s.object) {
		return s.complete()
	}

	s.retriesLeft = s.params.MaxRetransmissions
	s.attempt = 0
	if err := s.sendWindow(false); err != nil {
		s.log.Warn().Err(err).Msg("window send failed")
	}
	s.armRetransmit()
	return nil
}

func (s *sendSession) retransmitFired(gen uint32) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.timerGen || s.status != StatusInProgress {
		return nil
	}
	if s.retriesLeft == 0 {
		s.log.Warn().Msg("retransmission budget exhausted")
		return s.fail(CodeTimedOut)
	}
	s.retriesLeft--
	s.attempt++
	s.log.Debug().Int("attempt", s.attempt).Msg("retransmitting window")
	if err := s.sendWindow(false); err != nil {
		s.log.Warn().Err(err).Msg("window retransmit failed")
	}
	s.armRetransmit()
	return nil
}

func (s *sendSession) expired() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.terminal() {
		return nil
	}
	s.log.Warn().Msg("session expired")
	return s.fail(CodeExpired)
}

func (s *sendSession) abort() (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.terminal() {
		return nil, ErrSessionTerminal
	}
	return s.fail(CodeAborted), nil
}

// resume resends the current window with the resume flag and restarts
// the timer. The retry budget is not reset.
func (s *sendSession) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInProgress {
		return ErrSessionTerminal
	}
	if s.baseline+s.cursor*s.params.BlockPayload() >= len(s.object) {
		return ErrInvalidParams
	}
	s.stopRetransmit()
	if err := s.sendWindow(true); err != nil {
		s.log.Warn().Err(err).Msg("resume window send failed")
	}
	s.armRetransmit()
	return nil
}

func (s *sendSession) state() (Status, ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.code
}

func (s *sendSession) armRetransmit() {
	s.timerGen++
	gen := s.timerGen
	delay := s.params.retransmitDelay(s.attempt + 1)
	s.retransmit = time.AfterFunc(delay, func() {
		if ev := s.retransmitFired(gen); ev != nil && s.notify != nil {
			s.notify(*ev)
		}
	})
}

func (s *sendSession) stopRetransmit() {
	s.timerGen++
	if s.retransmit != nil {
		s.retransmit.Stop()
		s.retransmit = nil
	}
}

func (s *sendSession) armExpiry() {
	s.expiry = time.AfterFunc(s.params.SessionExpiry, func() {
		if ev := s.expired(); ev != nil && s.notify != nil {
			s.notify(*ev)
		}
	})
}

func (s *sendSession) stopTimers() {
	s.stopRetransmit()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *sendSession) fail(code ErrorCode) *Event {
	s.status = StatusFailed
	s.code = code
	s.stopTimers()
	return &Event{Handle: s.handle, SessionID: s.id, Status: StatusFailed, Code: code}
}

func (s *sendSession) complete() *Event {
	s.status = StatusComplete
	s.stopTimers()
	s.log.Info().Int("bytes", len(s.object)).Msg("object fully acknowledged")
	return &Event{Handle: s.handle, SessionID: s.id, Status: StatusComplete}
}
