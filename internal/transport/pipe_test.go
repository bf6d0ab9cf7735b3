package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func collectFrames(p *Pipe) <-chan []byte {
	ch := make(chan []byte, 16)
	p.SetHandler(func(f []byte) { ch <- f })
	return ch
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered")
		return nil
	}
}

func TestPipeDeliversBothDirections(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()
	fromA := collectFrames(b)
	fromB := collectFrames(a)

	if n, err := a.Send([]byte("ping")); err != nil || n != 4 {
		t.Fatalf("send: %d %v", n, err)
	}
	if got := recvFrame(t, fromA); !bytes.Equal(got, []byte("ping")) {
		t.Fatalf("got %q", got)
	}
	if _, err := b.Send([]byte("pong")); err != nil {
		t.Fatalf("send back: %v", err)
	}
	if got := recvFrame(t, fromB); !bytes.Equal(got, []byte("pong")) {
		t.Fatalf("got %q", got)
	}
}

func TestPipeCopiesFrames(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()
	fromA := collectFrames(b)

	buf := []byte("original")
	a.Send(buf)
	copy(buf, "clobber!")
	if got := recvFrame(t, fromA); !bytes.Equal(got, []byte("original")) {
		t.Fatalf("frame aliased sender buffer: %q", got)
	}
}

func TestPipeDropPredicate(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()
	fromA := collectFrames(b)

	a.SetDrop(func(p []byte) bool { return p[0] == 'x' })
	if n, err := a.Send([]byte("xdead")); err != nil || n != 5 {
		t.Fatalf("dropped send must still report success: %d %v", n, err)
	}
	a.Send([]byte("alive"))
	if got := recvFrame(t, fromA); !bytes.Equal(got, []byte("alive")) {
		t.Fatalf("got %q", got)
	}
}

func TestPipeSendAfterPeerClose(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	b.Close()

	// Once the peer's queue fills, sends fail instead of blocking.
	var err error
	for i := 0; i < 1024; i++ {
		if _, err = a.Send([]byte("frame")); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrPipeClosed) {
		t.Fatalf("expected ErrPipeClosed, got %v", err)
	}
}
