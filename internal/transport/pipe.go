package transport

import (
	"errors"
	"sync"
)

var ErrPipeClosed = errors.New("transport: pipe closed")

// Pipe is an in-process frame link. Frames sent on one end are queued
// and delivered asynchronously to the other end's handler, mirroring a
// real link's decoupling of send and receive contexts. An optional drop
// function lets tests inject loss.
type Pipe struct {
	peer *Pipe

	mu      sync.Mutex
	handler func(p []byte)
	drop    func(p []byte) bool
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewPair returns two connected pipe ends.
func NewPair() (*Pipe, *Pipe) {
	a := &Pipe{queue: make(chan []byte, 256), done: make(chan struct{})}
	b := &Pipe{queue: make(chan []byte, 256), done: make(chan struct{})}
	a.peer, b.peer = b, a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

// SetHandler registers the receive callback for frames arriving at this
// end.
func (p *Pipe) SetHandler(h func(p []byte)) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// SetDrop installs a loss predicate applied to frames sent from this
// end. Returning true discards the frame after a successful Send.
func (p *Pipe) SetDrop(f func(p []byte) bool) {
	p.mu.Lock()
	p.drop = f
	p.mu.Unlock()
}

// Send queues one frame for the peer. The frame is copied.
func (p *Pipe) Send(b []byte) (int, error) {
	p.mu.Lock()
	drop := p.drop
	p.mu.Unlock()
	if drop != nil && drop(b) {
		return len(b), nil
	}
	frame := make([]byte, len(b))
	copy(frame, b)
	select {
	case p.peer.queue <- frame:
		return len(b), nil
	case <-p.peer.done:
		return 0, ErrPipeClosed
	}
}

func (p *Pipe) deliverLoop() {
	for {
		select {
		case frame := <-p.queue:
			p.mu.Lock()
			h := p.handler
			p.mu.Unlock()
			if h != nil {
				h(frame)
			}
		case <-p.done:
			return
		}
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
