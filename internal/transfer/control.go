package transfer

import (
	"fmt"
	"time"

	"github.com/lotproto/lot/internal/tlv"
)

// Control message types. Control messages travel on a channel separate
// from data framing: one type byte followed by TLV fields.
const (
	ControlStart  byte = 0x01
	ControlResume byte = 0x02
	ControlAbort  byte = 0x03
)

// Control field ids.
const (
	fieldSessionID    uint16 = 1
	fieldObjectSize   uint16 = 2
	fieldMTU          uint16 = 3
	fieldWindowSize   uint16 = 4
	fieldAckTimeoutMS uint16 = 5
	fieldMaxRetrans   uint16 = 6
	fieldExpiryMS     uint16 = 7
	fieldErrorCode    uint16 = 8
)

var ErrShortControl = fmt.Errorf("%w: short control message", ErrInvalidPacket)

// StartMessage announces a new session and the parameters the receiver
// must mirror to derive identical window geometry.
type StartMessage struct {
	SessionID  uint16
	ObjectSize uint64
	Params     Params
}

// ResumeMessage announces that the sender is re-driving the current
// window of an existing session.
type ResumeMessage struct {
	SessionID uint16
}

// AbortMessage tears down a session on both ends.
type AbortMessage struct {
	SessionID uint16
	Code      ErrorCode
}

// ControlType peeks the message type without decoding fields.
func ControlType(p []byte) (byte, bool) {
	if len(p) < 1 {
		return 0, false
	}
	return p[0], true
}

func EncodeStart(m StartMessage) []byte {
	fields := []tlv.Field{
		tlv.U16Field(fieldSessionID, m.SessionID),
		tlv.U64Field(fieldObjectSize, m.ObjectSize),
		tlv.U16Field(fieldMTU, m.Params.MTU),
		tlv.U16Field(fieldWindowSize, m.Params.WindowSize),
		tlv.U32Field(fieldAckTimeoutMS, uint32(m.Params.AckTimeout/time.Millisecond)),
		tlv.U16Field(fieldMaxRetrans, m.Params.MaxRetransmissions),
		tlv.U32Field(fieldExpiryMS, uint32(m.Params.SessionExpiry/time.Millisecond)),
	}
	return append([]byte{ControlStart}, tlv.EncodeFields(fields)...)
}

func DecodeStart(p []byte) (StartMessage, error) {
	fields, err := decodeControl(p, ControlStart)
	if err != nil {
		return StartMessage{}, err
	}
	var m StartMessage
	if m.SessionID, err = u16Field(fields, fieldSessionID); err != nil {
		return StartMessage{}, err
	}
	f, ok := tlv.GetField(fields, fieldObjectSize)
	if !ok {
		return StartMessage{}, fmt.Errorf("%w: start missing object size", ErrInvalidPacket)
	}
	if m.ObjectSize, err = tlv.U64FromBytes(f.Value); err != nil {
		return StartMessage{}, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	if m.Params.MTU, err = u16Field(fields, fieldMTU); err != nil {
		return StartMessage{}, err
	}
	if m.Params.WindowSize, err = u16Field(fields, fieldWindowSize); err != nil {
		return StartMessage{}, err
	}
	ackMS, err := u32Field(fields, fieldAckTimeoutMS)
	if err != nil {
		return StartMessage{}, err
	}
	m.Params.AckTimeout = time.Duration(ackMS) * time.Millisecond
	if m.Params.MaxRetransmissions, err = u16Field(fields, fieldMaxRetrans); err != nil {
		return StartMessage{}, err
	}
	expiryMS, err := u32Field(fields, fieldExpiryMS)
	if err != nil {
		return StartMessage{}, err
	}
	m.Params.SessionExpiry = time.Duration(expiryMS) * time.Millisecond
	return m, nil
}

func EncodeResume(m ResumeMessage) []byte {
	fields := []tlv.Field{tlv.U16Field(fieldSessionID, m.SessionID)}
	return append([]byte{ControlResume}, tlv.EncodeFields(fields)...)
}

func DecodeResume(p []byte) (ResumeMessage, error) {
	fields, err := decodeControl(p, ControlResume)
	if err != nil {
		return ResumeMessage{}, err
	}
	var m ResumeMessage
	if m.SessionID, err = u16Field(fields, fieldSessionID); err != nil {
		return ResumeMessage{}, err
	}
	return m, nil
}

func EncodeAbort(m AbortMessage) []byte {
	fields := []tlv.Field{
		tlv.U16Field(fieldSessionID, m.SessionID),
		{ID: fieldErrorCode, Type: tlv.TypeU8, Value: []byte{byte(m.Code)}},
	}
	return append([]byte{ControlAbort}, tlv.EncodeFields(fields)...)
}

func DecodeAbort(p []byte) (AbortMessage, error) {
	fields, err := decodeControl(p, ControlAbort)
	if err != nil {
		return AbortMessage{}, err
	}
	var m AbortMessage
	if m.SessionID, err = u16Field(fields, fieldSessionID); err != nil {
		return AbortMessage{}, err
	}
	if f, ok := tlv.GetField(fields, fieldErrorCode); ok && len(f.Value) == 1 {
		m.Code = ErrorCode(f.Value[0])
	}
	return m, nil
}

func decodeControl(p []byte, want byte) ([]tlv.Field, error) {
	typ, ok := ControlType(p)
	if !ok {
		return nil, ErrShortControl
	}
	if typ != want {
		return nil, fmt.Errorf("%w: control type %#x, want %#x", ErrInvalidPacket, typ, want)
	}
	fields, err := tlv.DecodeFields(p[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	return fields, nil
}

func u16Field(fields []tlv.Field, id uint16) (uint16, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: control missing field %d", ErrInvalidPacket, id)
	}
	if err := tlv.MustType(f, tlv.TypeU16); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	v, err := tlv.U16FromBytes(f.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	return v, nil
}

func u32Field(fields []tlv.Field, id uint16) (uint32, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: control missing field %d", ErrInvalidPacket, id)
	}
	if err := tlv.MustType(f, tlv.TypeU32); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	v, err := tlv.U32FromBytes(f.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	return v, nil
}
