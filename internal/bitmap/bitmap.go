// Package bitmap provides the fixed-capacity bit vector used to track
// received and missing blocks within the block-numbering space.
package bitmap

import "fmt"

// Bitmap is a fixed-capacity bit vector. Capacity is set at construction
// and never grows; indexing past it is a programming error and panics.
type Bitmap struct {
	n    int
	bits []byte
}

// New returns a cleared bitmap holding n bits in ceil(n/8) bytes.
func New(n int) *Bitmap {
	if n <= 0 {
		panic(fmt.Sprintf("bitmap: invalid capacity %d", n))
	}
	return &Bitmap{n: n, bits: make([]byte, (n+7)/8)}
}

func (b *Bitmap) check(i int) {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("bitmap: index %d out of range [0,%d)", i, b.n))
	}
}

func (b *Bitmap) Set(i int) {
	b.check(i)
	b.bits[i>>3] |= 1 << (i & 7)
}

func (b *Bitmap) IsSet(i int) bool {
	b.check(i)
	return b.bits[i>>3]&(1<<(i&7)) != 0
}

// Clear zeroes every bit, keeping capacity.
func (b *Bitmap) Clear() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Len is the bit capacity.
func (b *Bitmap) Len() int { return b.n }

// Bytes exposes the backing storage, ceil(Len/8) bytes. Callers must not
// hold the slice across a Clear.
func (b *Bitmap) Bytes() []byte { return b.bits }

// IsSetIn reports whether bit i is set in a raw bitmap slice laid out the
// same way (LSB-first within each byte). Used by the send side to read
// bitmaps straight off the wire.
func IsSetIn(raw []byte, i int) bool {
	if i < 0 || i>>3 >= len(raw) {
		return false
	}
	return raw[i>>3]&(1<<(i&7)) != 0
}
