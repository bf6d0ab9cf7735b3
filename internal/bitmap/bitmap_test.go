package bitmap

import "testing"

func TestSetIsSetClear(t *testing.T) {
	b := New(12)
	if b.Len() != 12 {
		t.Fatalf("len %d", b.Len())
	}
	if got := len(b.Bytes()); got != 2 {
		t.Fatalf("backing bytes %d, want 2", got)
	}
	for _, i := range []int{0, 3, 8, 11} {
		b.Set(i)
	}
	for i := 0; i < 12; i++ {
		want := i == 0 || i == 3 || i == 8 || i == 11
		if b.IsSet(i) != want {
			t.Fatalf("bit %d = %v, want %v", i, b.IsSet(i), want)
		}
	}
	b.Clear()
	for i := 0; i < 12; i++ {
		if b.IsSet(i) {
			t.Fatalf("bit %d set after clear", i)
		}
	}
}

func TestSetIdempotent(t *testing.T) {
	b := New(8)
	b.Set(5)
	b.Set(5)
	if !b.IsSet(5) {
		t.Fatalf("bit lost")
	}
	if b.Bytes()[0] != 1<<5 {
		t.Fatalf("backing byte %#x", b.Bytes()[0])
	}
}

func TestOutOfRangePanics(t *testing.T) {
	cases := []func(*Bitmap){
		func(b *Bitmap) { b.Set(16) },
		func(b *Bitmap) { b.Set(-1) },
		func(b *Bitmap) { b.IsSet(16) },
	}
	for i, fn := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("case %d: expected panic", i)
				}
			}()
			fn(New(16))
		}()
	}
}

func TestNewInvalidCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(0)
}

func TestIsSetIn(t *testing.T) {
	raw := []byte{0b0000_0100, 0b1000_0000}
	if !IsSetIn(raw, 2) || !IsSetIn(raw, 15) {
		t.Fatalf("expected bits 2 and 15 set")
	}
	if IsSetIn(raw, 3) || IsSetIn(raw, 16) || IsSetIn(raw, -1) {
		t.Fatalf("unexpected set bits")
	}
}
