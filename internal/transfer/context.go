// Package transfer implements the windowed, selective-repeat block
// transfer engine: per-direction session pools, the sliding-window
// numbering scheme, bitmap acknowledgments, and the retransmission and
// expiry state machines. The transport is an external collaborator that
// delivers whole frames in both directions.
package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lotproto/lot/internal/wire"
)

// Transport sends one whole frame to the peer. A short count without an
// error is treated as a network failure by the engine.
type Transport interface {
	Send(p []byte) (int, error)
}

// DataFunc receives reassembled bytes once per completed window, in
// increasing offset order. The slice is only valid for the duration of
// the call; callers must copy to retain it. It must not call back into
// the Context.
type DataFunc func(offset int, p []byte)

// EventFunc observes session state transitions. It may call back into
// the Context (for example to Destroy a terminal session).
type EventFunc func(ev Event)

// Config wires a Context to its collaborators.
type Config struct {
	Params    Params
	Transport Transport

	// Control, when set, carries START/RESUME/ABORT handshake messages
	// on a channel separate from data framing.
	Control Transport

	// SendSessions and RecvSessions are the fixed pool capacities per
	// direction. Zero means DefaultSessions.
	SendSessions int
	RecvSessions int

	OnData  DataFunc
	OnEvent EventFunc
	Logger  zerolog.Logger
}

const DefaultSessions = 4

var ErrClosed = errors.New("transfer: context closed")

// Context owns the session pools and routes inbound frames to the
// session matching their id, provisioning receive sessions for unknown
// data blocks.
type Context struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	send    []*sendSession
	sendGen []uint32
	recv    []*recvSession
	recvGen []uint32
	nextID  uint16
	closed  bool
}

func NewContext(cfg Config) (*Context, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParams)
	}
	if cfg.SendSessions <= 0 {
		cfg.SendSessions = DefaultSessions
	}
	if cfg.RecvSessions <= 0 {
		cfg.RecvSessions = DefaultSessions
	}
	return &Context{
		cfg:     cfg,
		log:     cfg.Logger,
		send:    make([]*sendSession, cfg.SendSessions),
		sendGen: make([]uint32, cfg.SendSessions),
		recv:    make([]*recvSession, cfg.RecvSessions),
		recvGen: make([]uint32, cfg.RecvSessions),
		nextID:  1,
	}, nil
}

// Send begins transmission of object to the peer. The object bytes are
// caller-owned and must remain valid until the session is terminal.
func (c *Context) Send(object []byte) (Handle, error) {
	if len(object) == 0 {
		return Handle{}, fmt.Errorf("%w: empty object", ErrInvalidParams)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Handle{}, ErrClosed
	}
	slot := -1
	for i, s := range c.send {
		if s == nil {
			slot = i
			break
		}
		if st, _ := s.state(); st == StatusComplete {
			slot = i
			break
		}
	}
	if slot < 0 {
		c.mu.Unlock()
		return Handle{}, ErrMaxSessions
	}

	id := c.allocSessionID()
	c.sendGen[slot]++
	h := Handle{dir: DirSend, index: slot, gen: c.sendGen[slot]}
	s := newSendSession(h, id, object, c.cfg.Params, c.cfg.Transport, c.log, c.emit)
	c.send[slot] = s
	c.mu.Unlock()

	if c.cfg.Control != nil {
		c.sendControl(EncodeStart(StartMessage{
			SessionID:  id,
			ObjectSize: uint64(len(object)),
			Params:     c.cfg.Params,
		}))
	}
	s.start()
	return h, nil
}

// allocSessionID returns the next id from the monotonic counter,
// skipping zero and ids still held by active sessions of either
// direction. Caller holds c.mu.
func (c *Context) allocSessionID() uint16 {
	for {
		id := c.nextID
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if id == 0 || c.sendByID(id) != nil || c.recvByID(id) != nil {
			continue
		}
		return id
	}
}

func (c *Context) sendByID(id uint16) *sendSession {
	for _, s := range c.send {
		if s != nil && s.id == id {
			return s
		}
	}
	return nil
}

func (c *Context) recvByID(id uint16) *recvSession {
	for _, r := range c.recv {
		if r != nil && r.id == id {
			return r
		}
	}
	return nil
}

// HandleFrame is the transport receive callback: it dispatches an
// inbound frame to the session owning its id, or provisions a receive
// session for a data block with an unknown id. Malformed or unroutable
// frames are dropped; they never fail the router.
func (c *Context) HandleFrame(p []byte) {
	id, ok := wire.PeekSessionID(p)
	if !ok {
		c.log.Warn().Int("len", len(p)).Msg("dropping runt frame")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if s := c.sendByID(id); s != nil {
		c.mu.Unlock()
		ack, err := wire.DecodeAck(p)
		if err != nil {
			c.log.Warn().Err(err).Uint16("session", id).Msg("dropping bad ack frame")
			return
		}
		if ev := s.processAck(ack); ev != nil {
			c.emit(*ev)
		}
		return
	}
	if r := c.recvByID(id); r != nil {
		c.mu.Unlock()
		blk, err := wire.DecodeBlock(p)
		if err != nil {
			c.log.Warn().Err(err).Uint16("session", id).Msg("dropping bad block frame")
			return
		}
		if ev := r.handleBlock(blk); ev != nil {
			c.emit(*ev)
		}
		return
	}

	// First sight of this session id: provision a receive session.
	blk, err := wire.DecodeBlock(p)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Uint16("session", id).Msg("dropping unroutable frame")
		return
	}
	slot := -1
	for i, r := range c.recv {
		if r == nil {
			slot = i
			break
		}
		if st, _ := r.state(); st == StatusComplete {
			slot = i
			break
		}
	}
	if slot < 0 {
		c.mu.Unlock()
		c.log.Error().Uint16("session", id).Msg("receive pool exhausted, dropping block")
		return
	}
	c.recvGen[slot]++
	h := Handle{dir: DirRecv, index: slot, gen: c.recvGen[slot]}
	r := newRecvSession(h, id, c.cfg.Params, c.cfg.Transport, c.log, c.cfg.OnData, c.emit)
	c.recv[slot] = r
	c.mu.Unlock()

	r.startExpiry()
	c.log.Info().Uint16("session", id).Msg("receive session provisioned")
	if ev := r.handleBlock(blk); ev != nil {
		c.emit(*ev)
	}
}

// Resume resends the current window of a send session without resetting
// its retry budget. Only valid while the session is in progress.
func (c *Context) Resume(h Handle) error {
	if h.dir != DirSend {
		return fmt.Errorf("%w: resume is sender-only", ErrInvalidParams)
	}
	s, err := c.lookupSend(h)
	if err != nil {
		return err
	}
	if err := s.resume(); err != nil {
		return err
	}
	if c.cfg.Control != nil {
		c.sendControl(EncodeResume(ResumeMessage{SessionID: s.id}))
	}
	return nil
}

// Abort terminates a session immediately. Any concurrently in-flight
// timer fire or frame for it becomes a no-op.
func (c *Context) Abort(h Handle) error {
	var ev *Event
	var id uint16
	switch h.dir {
	case DirSend:
		s, err := c.lookupSend(h)
		if err != nil {
			return err
		}
		id = s.id
		if ev, err = s.abort(); err != nil {
			return err
		}
	case DirRecv:
		r, err := c.lookupRecv(h)
		if err != nil {
			return err
		}
		id = r.id
		if ev, err = r.abort(); err != nil {
			return err
		}
	}
	if c.cfg.Control != nil {
		c.sendControl(EncodeAbort(AbortMessage{SessionID: id, Code: CodeAborted}))
	}
	if ev != nil {
		c.emit(*ev)
	}
	return nil
}

// Destroy releases a terminal session's slot. Destroying a session that
// is still in progress is an error.
func (c *Context) Destroy(h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch h.dir {
	case DirSend:
		s := c.sendAt(h)
		if s == nil {
			return ErrSessionNotFound
		}
		if st, _ := s.state(); st == StatusInProgress {
			return ErrSessionInProgress
		}
		s.mu.Lock()
		s.stopTimers()
		s.mu.Unlock()
		c.send[h.index] = nil
		c.sendGen[h.index]++
	case DirRecv:
		r := c.recvAt(h)
		if r == nil {
			return ErrSessionNotFound
		}
		if st, _ := r.state(); st == StatusInProgress {
			return ErrSessionInProgress
		}
		r.mu.Lock()
		r.stopTimers()
		r.mu.Unlock()
		c.recv[h.index] = nil
		c.recvGen[h.index]++
	}
	return nil
}

// Status reports a session's lifecycle state and, for failed sessions,
// the error code.
func (c *Context) Status(h Handle) (Status, ErrorCode, error) {
	switch h.dir {
	case DirSend:
		s, err := c.lookupSend(h)
		if err != nil {
			return StatusInit, CodeNone, err
		}
		st, code := s.state()
		return st, code, nil
	default:
		r, err := c.lookupRecv(h)
		if err != nil {
			return StatusInit, CodeNone, err
		}
		st, code := r.state()
		return st, code, nil
	}
}

// BytesDelivered reports how many reassembled bytes a receive session
// has handed to the data callback.
func (c *Context) BytesDelivered(h Handle) (int, error) {
	r, err := c.lookupRecv(h)
	if err != nil {
		return 0, err
	}
	return r.bytesDelivered(), nil
}

// Close aborts every live session and refuses further work.
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	sends := make([]*sendSession, 0, len(c.send))
	recvs := make([]*recvSession, 0, len(c.recv))
	for i, s := range c.send {
		if s != nil {
			sends = append(sends, s)
			c.send[i] = nil
			c.sendGen[i]++
		}
	}
	for i, r := range c.recv {
		if r != nil {
			recvs = append(recvs, r)
			c.recv[i] = nil
			c.recvGen[i]++
		}
	}
	c.mu.Unlock()

	for _, s := range sends {
		if ev, err := s.abort(); err == nil && ev != nil {
			c.emit(*ev)
		}
	}
	for _, r := range recvs {
		if ev, err := r.abort(); err == nil && ev != nil {
			c.emit(*ev)
		}
	}
}

func (c *Context) lookupSend(h Handle) (*sendSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sendAt(h)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (c *Context) lookupRecv(h Handle) (*recvSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.recvAt(h)
	if r == nil {
		return nil, ErrSessionNotFound
	}
	return r, nil
}

// sendAt and recvAt validate handle generation against the slot, so a
// handle for a recycled slot resolves to nothing. Caller holds c.mu.
func (c *Context) sendAt(h Handle) *sendSession {
	if h.index < 0 || h.index >= len(c.send) || c.sendGen[h.index] != h.gen {
		return nil
	}
	return c.send[h.index]
}

func (c *Context) recvAt(h Handle) *recvSession {
	if h.index < 0 || h.index >= len(c.recv) || c.recvGen[h.index] != h.gen {
		return nil
	}
	return c.recv[h.index]
}

func (c *Context) emit(ev Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}
}

func (c *Context) sendControl(p []byte) {
	n, err := c.cfg.Control.Send(p)
	if err != nil || n < len(p) {
		c.log.Warn().Err(err).Msg("control message send failed")
	}
}
