package vstore

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/edgevec/edgevec/pkg/quant"
)

func TestAppendAndFetch(t *testing.T) {
	s, err := New(4, quant.None)
	if err != nil {
		t.Fatal(err)
	}

	slot, err := s.Append([]float32{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if slot != 0 {
		t.Errorf("first slot should be 0, got %d", slot)
	}

	slot, err = s.Append([]float32{5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if slot != 1 {
		t.Errorf("second slot should be 1, got %d", slot)
	}

	got := s.Float(1)
	want := []float32{5, 6, 7, 8}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot 1 component %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if s.Count() != 2 {
		t.Errorf("count = %d, want 2", s.Count())
	}
}

func TestAppendValidation(t *testing.T) {
	s, _ := New(3, quant.None)

	if _, err := s.Append([]float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short vector: got %v", err)
	}
	if _, err := s.Append(nil); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("empty vector: got %v", err)
	}
	if _, err := s.Append([]float32{1, float32(math.NaN()), 3}); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("NaN vector: got %v", err)
	}
	if _, err := s.Append([]float32{1, float32(math.Inf(1)), 3}); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("inf vector: got %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("failed appends must not grow the store, count = %d", s.Count())
	}
}

func TestShadowsWrittenAtomically(t *testing.T) {
	s, _ := New(8, quant.SQ8|quant.Binary)

	if _, err := s.Append([]float32{1, -1, 2, -2, 3, -3, 4, -4}); err != nil {
		t.Fatal(err)
	}

	code, p := s.SQ8(0)
	if len(code) != 8 {
		t.Errorf("sq8 code length %d, want 8", len(code))
	}
	if p.Min != -4 || p.Max != 4 {
		t.Errorf("sq8 params %+v, want min -4 max 4", p)
	}

	words := s.Binary(0)
	if len(words) != 1 {
		t.Fatalf("binary words %d, want 1", len(words))
	}
	// Positive components at even positions 0,2,4,6.
	if want := uint64(1)<<0 | 1<<2 | 1<<4 | 1<<6; words[0] != want {
		t.Errorf("binary row %08b, want %08b", words[0], want)
	}
}

func TestCompact(t *testing.T) {
	s, _ := New(2, quant.SQ8|quant.Binary)
	for i := 0; i < 5; i++ {
		if _, err := s.Append([]float32{float32(i), float32(-i)}); err != nil {
			t.Fatal(err)
		}
	}

	// Keep slots 0, 2, 4.
	s.Compact([]int{0, 2, 4})

	if s.Count() != 3 {
		t.Fatalf("count after compact = %d, want 3", s.Count())
	}
	for newSlot, oldVal := range []float32{0, 2, 4} {
		if got := s.Float(newSlot)[0]; got != oldVal {
			t.Errorf("slot %d first component = %v, want %v", newSlot, got, oldVal)
		}
	}

	// Shadows must have moved with their rows.
	_, p := s.SQ8(2)
	if p.Min != -4 || p.Max != 4 {
		t.Errorf("sq8 params did not move with row: %+v", p)
	}
}

func TestRestoreLengthChecks(t *testing.T) {
	s, _ := New(4, quant.None)
	if err := s.Restore(2, make([]float32, 7), nil, nil, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := s.Restore(2, make([]float32, 8), nil, nil, nil); err != nil {
		t.Errorf("valid restore failed: %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("count after restore = %d, want 2", s.Count())
	}
}

func TestMemoryBytesGrows(t *testing.T) {
	s, _ := New(64, quant.SQ8)
	before := s.MemoryBytes()

	rng := rand.New(rand.NewSource(1))
	vec := make([]float32, 64)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	if _, err := s.Append(vec); err != nil {
		t.Fatal(err)
	}

	if s.MemoryBytes() <= before {
		t.Error("MemoryBytes did not grow after append")
	}
}
