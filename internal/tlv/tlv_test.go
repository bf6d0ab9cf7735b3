package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFields(t *testing.T) {
	in := []Field{
		U16Field(1, 0xABCD),
		U32Field(2, 70000),
		U64Field(3, 1<<40),
		{ID: 4, Type: TypeBytes, Value: []byte("opaque")},
		{ID: 5, Type: TypeU8, Value: []byte{7}},
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("field count %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].Type != in[i].Type || !bytes.Equal(out[i].Value, in[i].Value) {
			t.Fatalf("field %d mismatch: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestDecodeFieldsEmpty(t *testing.T) {
	out, err := DecodeFields(nil)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("unexpected fields: %+v", out)
	}
}

func TestDecodeFieldsShortHeader(t *testing.T) {
	if _, err := DecodeFields([]byte{1, 2, 3}); !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsShortValue(t *testing.T) {
	buf := EncodeField(Field{ID: 1, Type: TypeBytes, Value: []byte("abcdef")})
	if _, err := DecodeFields(buf[:len(buf)-2]); !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestAppendFieldReusesScratch(t *testing.T) {
	scratch := make([]byte, 0, 64)
	out := AppendField(scratch, Field{ID: 1, Type: TypeU8, Value: []byte{9}})
	if &out[0] != &scratch[:1][0] {
		t.Fatalf("expected append into scratch backing array")
	}
	if len(out) != HeaderLen+1 {
		t.Fatalf("length %d, want %d", len(out), HeaderLen+1)
	}
}

func TestDecodeFieldsCopiesValues(t *testing.T) {
	buf := EncodeField(Field{ID: 1, Type: TypeBytes, Value: []byte("abc")})
	out, err := DecodeFields(buf)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	buf[HeaderLen] = 'x'
	if !bytes.Equal(out[0].Value, []byte("abc")) {
		t.Fatalf("decoded value aliases input buffer: %q", out[0].Value)
	}
}

func TestGetFieldAndMustType(t *testing.T) {
	fields := []Field{U16Field(9, 42)}
	f, ok := GetField(fields, 9)
	if !ok {
		t.Fatalf("field 9 missing")
	}
	if err := MustType(f, TypeU16); err != nil {
		t.Fatalf("must type: %v", err)
	}
	if err := MustType(f, TypeU32); err == nil {
		t.Fatalf("expected type mismatch")
	}
	if _, ok := GetField(fields, 10); ok {
		t.Fatalf("unexpected field 10")
	}
}

func TestIntFromBytes(t *testing.T) {
	if v, err := U16FromBytes([]byte{0x01, 0x02}); err != nil || v != 0x0102 {
		t.Fatalf("u16: %d %v", v, err)
	}
	if _, err := U16FromBytes([]byte{1}); err == nil {
		t.Fatalf("u16 expected length error")
	}
	if v, err := U32FromBytes([]byte{0, 1, 0, 0}); err != nil || v != 1<<16 {
		t.Fatalf("u32: %d %v", v, err)
	}
	if _, err := U32FromBytes(nil); err == nil {
		t.Fatalf("u32 expected length error")
	}
	if v, err := U64FromBytes([]byte{0, 0, 0, 1, 0, 0, 0, 0}); err != nil || v != 1<<32 {
		t.Fatalf("u64: %d %v", v, err)
	}
	if _, err := U64FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("u64 expected length error")
	}
}
