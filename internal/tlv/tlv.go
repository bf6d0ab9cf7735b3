// Package tlv is the generic structured encoder used by the control
// handshake. Control payloads are a flat sequence of
// [id:u16][type:u8][len:u32][value] fields; unknown field ids are
// skipped by decoders so the handshake can grow fields.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

// Field type ids.
const (
	TypeU8    uint8 = 1
	TypeU16   uint8 = 2
	TypeU32   uint8 = 3
	TypeU64   uint8 = 4
	TypeBytes uint8 = 5
)

// Field is one decoded field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// AppendField appends the wire form of f to dst.
func AppendField(dst []byte, f Field) []byte {
	dst = binary.BigEndian.AppendUint16(dst, f.ID)
	dst = append(dst, f.Type)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Value)))
	return append(dst, f.Value...)
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, HeaderLen+len(f.Value)), f)
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields parses every field in payload. Values are copied, so the
// result does not alias payload.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	rest := payload
	for len(rest) > 0 {
		if len(rest) < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		f := Field{
			ID:   binary.BigEndian.Uint16(rest[0:2]),
			Type: rest[2],
		}
		n := int(binary.BigEndian.Uint32(rest[3:7]))
		rest = rest[HeaderLen:]
		if n > len(rest) {
			return nil, ErrShortFieldValue
		}
		f.Value = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

// GetField returns the first field with the given id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for i := range fields {
		if fields[i].ID == id {
			return fields[i], true
		}
	}
	return Field{}, false
}

// MustType rejects a field whose type byte does not match.
func MustType(f Field, want uint8) error {
	if f.Type != want {
		return fmt.Errorf("tlv: field %d: type %d, want %d", f.ID, f.Type, want)
	}
	return nil
}

func U16Field(id uint16, v uint16) Field {
	return Field{ID: id, Type: TypeU16, Value: binary.BigEndian.AppendUint16(nil, v)}
}

func U32Field(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

func U64Field(id uint16, v uint64) Field {
	return Field{ID: id, Type: TypeU64, Value: binary.BigEndian.AppendUint64(nil, v)}
}

func U16FromBytes(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("tlv: u16 field has %d bytes", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tlv: u32 field has %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func U64FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tlv: u64 field has %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
