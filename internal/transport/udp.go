// Package transport provides frame transports for the transfer engine:
// a UDP adapter for the lotctl binaries and an in-process pipe used in
// tests. Both deliver whole frames; fragmentation below frame
// granularity is out of scope.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

const maxFrame = 64 * 1024

var ErrNoPeer = errors.New("transport: peer address not known yet")

// UDP carries one frame per datagram. The receive side learns the peer
// address from the first inbound datagram when none was configured, so
// acknowledgments flow back without prior knowledge of the sender.
type UDP struct {
	conn net.PacketConn

	mu   sync.Mutex
	peer net.Addr
}

// ListenUDP opens a transport bound to addr. Pass peer as empty to
// learn it from the first inbound datagram.
func ListenUDP(addr, peer string) (*UDP, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	u := &UDP{conn: conn}
	if peer != "" {
		raddr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve %s: %w", peer, err)
		}
		u.peer = raddr
	}
	return u, nil
}

// Send writes one frame to the peer.
func (u *UDP) Send(p []byte) (int, error) {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return 0, ErrNoPeer
	}
	return u.conn.WriteTo(p, peer)
}

// Serve reads datagrams until the connection is closed, handing each
// whole frame to handle. It returns nil on a closed connection.
func (u *UDP) Serve(handle func(p []byte)) error {
	buf := make([]byte, maxFrame)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		u.mu.Lock()
		if u.peer == nil {
			u.peer = addr
		}
		u.mu.Unlock()
		frame := make([]byte, n)
		copy(frame, buf[:n])
		handle(frame)
	}
}

func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) Close() error { return u.conn.Close() }
