package encoding

import (
	"math"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.U8(7)
	w.U16(65535)
	w.U32(1 << 30)
	w.U64(1 << 60)
	w.I64(-42)
	w.F32(3.25)
	w.F64(-2.5)
	w.Str("hello")
	w.Raw([]byte{1, 2, 3})
	w.F32s([]float32{1, -1, 0.5})
	w.U64s([]uint64{9, 10})

	r := NewReader(w.Bytes())
	if got := r.U8(); got != 7 {
		t.Errorf("U8 = %d", got)
	}
	if got := r.U16(); got != 65535 {
		t.Errorf("U16 = %d", got)
	}
	if got := r.U32(); got != 1<<30 {
		t.Errorf("U32 = %d", got)
	}
	if got := r.U64(); got != 1<<60 {
		t.Errorf("U64 = %d", got)
	}
	if got := r.I64(); got != -42 {
		t.Errorf("I64 = %d", got)
	}
	if got := r.F32(); got != 3.25 {
		t.Errorf("F32 = %v", got)
	}
	if got := r.F64(); got != -2.5 {
		t.Errorf("F64 = %v", got)
	}
	if got := r.Str(); got != "hello" {
		t.Errorf("Str = %q", got)
	}
	if got := r.Raw(3); got[0] != 1 || got[2] != 3 {
		t.Errorf("Raw = %v", got)
	}
	if got := r.F32s(3); got[1] != -1 {
		t.Errorf("F32s = %v", got)
	}
	if got := r.U64s(2); got[0] != 9 || got[1] != 10 {
		t.Errorf("U64s = %v", got)
	}
	if r.Err() != nil {
		t.Errorf("err = %v", r.Err())
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining = %d", r.Remaining())
	}
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.U32() // past the end
	if r.Err() != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", r.Err())
	}
	// Subsequent reads stay failed and return zero values.
	if got := r.U64(); got != 0 {
		t.Errorf("read after error returned %d", got)
	}
	if r.Err() != ErrShortBuffer {
		t.Errorf("error not sticky")
	}
}

func TestReaderNegativeLengthRejected(t *testing.T) {
	// A corrupt length prefix must not panic.
	w := NewWriter(8)
	w.U32(0xFFFFFFFF)
	r := NewReader(w.Bytes())
	if got := r.Str(); got != "" {
		t.Errorf("Str on corrupt prefix = %q", got)
	}
	if r.Err() == nil {
		t.Error("expected error")
	}
}

func TestFloatBitPatterns(t *testing.T) {
	// NaN and signed zero survive the round trip.
	w := NewWriter(16)
	w.F32(float32(math.NaN()))
	w.F64(math.Copysign(0, -1))

	r := NewReader(w.Bytes())
	if got := r.F32(); !math.IsNaN(float64(got)) {
		t.Errorf("NaN lost: %v", got)
	}
	if got := r.F64(); math.Signbit(got) != true || got != 0 {
		t.Errorf("signed zero lost: %v", got)
	}
}
