package bitset

import (
	"testing"
)

func TestBitSet_SetUnsetAcrossWords(t *testing.T) {
	bs := NewBitSet(130)
	if len(bs) != 3 {
		t.Fatalf("expected 3 words for 130 bits, got %d", len(bs))
	}

	indices := []uint64{0, 63, 64, 127, 129}
	for _, i := range indices {
		bs.Set(i)
	}
	for _, i := range indices {
		if !bs.IsSet(i) {
			t.Errorf("expected bit %d to be set", i)
		}
	}
	if bs.IsSet(1) || bs.IsSet(128) {
		t.Error("unexpected bit set")
	}
	if got := bs.Count(); got != len(indices) {
		t.Errorf("Count() = %d, want %d", got, len(indices))
	}

	bs.Unset(64)
	if bs.IsSet(64) {
		t.Error("expected bit 64 to be unset")
	}
	if !bs.IsSet(63) || !bs.IsSet(127) {
		t.Error("unset touched neighbouring bits")
	}

	bs.Clear()
	if got := bs.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}
}

func TestBitSet_SetFrom(t *testing.T) {
	src := BitSet{0b1010, 0b1111}
	dst := NewBitSet(128)
	dst.SetFrom(src)
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("dst[%d]=%b, want %b", i, dst[i], src[i])
		}
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("SetFrom did not panic on mismatched lengths")
		}
	}()
	BitSet{0}.SetFrom(src)
}
