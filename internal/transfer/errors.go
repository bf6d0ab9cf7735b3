package transfer

import "errors"

var (
	ErrMaxSessions       = errors.New("transfer: session pool exhausted")
	ErrInvalidParams     = errors.New("transfer: invalid parameters")
	ErrInvalidPacket     = errors.New("transfer: malformed frame")
	ErrNetwork           = errors.New("transfer: transport send failed")
	ErrTimedOut          = errors.New("transfer: retransmission budget exhausted")
	ErrExpired           = errors.New("transfer: session lifetime exceeded")
	ErrSessionInProgress = errors.New("transfer: session still in progress")
	ErrSessionNotFound   = errors.New("transfer: no such session")
	ErrSessionTerminal   = errors.New("transfer: session already terminal")
	ErrInternal          = errors.New("transfer: internal error")
)

// ErrorCode is the single-byte error carried in acknowledgment frames and
// reported on session failure events. CodeNone is success.
type ErrorCode uint8

const (
	CodeNone ErrorCode = iota
	CodeNoMemory
	CodeMaxSessions
	CodeInvalidPacket
	CodeNetworkError
	CodeTimedOut
	CodeExpired
	CodeAborted
	CodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeNoMemory:
		return "no_memory"
	case CodeMaxSessions:
		return "max_sessions"
	case CodeInvalidPacket:
		return "invalid_packet"
	case CodeNetworkError:
		return "network_error"
	case CodeTimedOut:
		return "timed_out"
	case CodeExpired:
		return "expired"
	case CodeAborted:
		return "aborted"
	case CodeInternal:
		return "internal"
	}
	return "unknown"
}

// Err maps a wire error code to the matching sentinel error.
func (c ErrorCode) Err() error {
	switch c {
	case CodeNone:
		return nil
	case CodeMaxSessions:
		return ErrMaxSessions
	case CodeInvalidPacket:
		return ErrInvalidPacket
	case CodeNetworkError:
		return ErrNetwork
	case CodeTimedOut:
		return ErrTimedOut
	case CodeExpired:
		return ErrExpired
	case CodeAborted:
		return ErrSessionTerminal
	}
	return ErrInternal
}
