// Package wire packs and unpacks the two data-channel frame types:
// data blocks and acknowledgments. Frames are whole-datagram; no partial
// frame handling exists at this layer.
package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// BlockHeaderLen is the fixed data block header:
	// session id (2) + block number (2) + flags (1).
	BlockHeaderLen = 5

	// AckHeaderLen is the fixed acknowledgment header:
	// session id (2) + error code (1). A bitmap may follow.
	AckHeaderLen = 3

	FlagLastBlock byte = 0x01
	FlagResume    byte = 0x02

	// reservedFlagBits is set by the sender on every block and ignored
	// by the receiver. Bits 2-7 of the flags byte.
	reservedFlagBits byte = 0xE0
)

var (
	ErrShortBlock = errors.New("wire: short block frame")
	ErrShortAck   = errors.New("wire: short ack frame")
)

// Block is one decoded data block frame.
type Block struct {
	SessionID uint16
	BlockNum  uint16
	Flags     byte
	Payload   []byte
}

func (b Block) Last() bool   { return b.Flags&FlagLastBlock != 0 }
func (b Block) Resume() bool { return b.Flags&FlagResume != 0 }

// Ack is one decoded acknowledgment frame. An empty Bitmap signals that
// the full window was received and the sender may advance.
type Ack struct {
	SessionID uint16
	Code      byte
	Bitmap    []byte
}

// EncodeBlock allocates and fills a block frame.
func EncodeBlock(sessionID, blockNum uint16, flags byte, payload []byte) []byte {
	return AppendBlock(make([]byte, 0, BlockHeaderLen+len(payload)), sessionID, blockNum, flags, payload)
}

// AppendBlock appends a block frame to dst and returns the extended slice.
// Sessions pass a reusable scratch buffer to avoid a per-frame allocation.
func AppendBlock(dst []byte, sessionID, blockNum uint16, flags byte, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, sessionID)
	dst = binary.BigEndian.AppendUint16(dst, blockNum)
	dst = append(dst, flags|reservedFlagBits)
	dst = append(dst, payload...)
	return dst
}

// DecodeBlock parses a block frame. The returned payload aliases p.
func DecodeBlock(p []byte) (Block, error) {
	if len(p) < BlockHeaderLen {
		return Block{}, ErrShortBlock
	}
	return Block{
		SessionID: binary.BigEndian.Uint16(p[0:2]),
		BlockNum:  binary.BigEndian.Uint16(p[2:4]),
		Flags:     p[4],
		Payload:   p[BlockHeaderLen:],
	}, nil
}

// EncodeAck allocates and fills an acknowledgment frame. A nil or empty
// bitmap encodes full-window success.
func EncodeAck(sessionID uint16, code byte, bitmap []byte) []byte {
	buf := make([]byte, 0, AckHeaderLen+len(bitmap))
	buf = binary.BigEndian.AppendUint16(buf, sessionID)
	buf = append(buf, code)
	buf = append(buf, bitmap...)
	return buf
}

// DecodeAck parses an acknowledgment frame. The returned bitmap aliases p.
func DecodeAck(p []byte) (Ack, error) {
	if len(p) < AckHeaderLen {
		return Ack{}, ErrShortAck
	}
	return Ack{
		SessionID: binary.BigEndian.Uint16(p[0:2]),
		Code:      p[2],
		Bitmap:    p[AckHeaderLen:],
	}, nil
}

// PeekSessionID reads the session id shared by both frame layouts without
// a full decode. Used by the router to dispatch inbound frames.
func PeekSessionID(p []byte) (uint16, bool) {
	if len(p) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(p[0:2]), true
}
