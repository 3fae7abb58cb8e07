// Package vstore owns the raw vector bytes for an index: a mandatory
// row-major float32 matrix plus optional SQ8 and 1-bit packed shadows.
// Slots are dense and append-only; reclaiming tombstoned slots is the
// index's compaction concern, carried out through Compact.
package vstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/edgevec/edgevec/pkg/quant"
)

var (
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidVector is returned for empty or non-finite vectors.
	ErrInvalidVector = errors.New("invalid vector")
)

// Store holds all vector representations for one index.
type Store struct {
	dim   int
	mode  quant.Mode
	words int // uint64 words per binary row

	floats []float32 // row-major, len = count*dim, 4-byte aligned by construction
	codes  []byte    // SQ8 rows, len = count*dim when enabled
	params []quant.SQ8Params
	bits   []uint64 // packed binary rows, len = count*words when enabled

	count int
}

// New creates a store for fixed-dimension vectors with the given
// compressed shadows enabled.
func New(dim int, mode quant.Mode) (*Store, error) {
	if dim < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &Store{
		dim:   dim,
		mode:  mode,
		words: quant.WordsFor(dim),
	}, nil
}

// Dim returns the fixed vector dimension.
func (s *Store) Dim() int { return s.dim }

// Count returns the number of stored rows, including tombstoned ones.
func (s *Store) Count() int { return s.count }

// Mode returns the enabled quantization shadows.
func (s *Store) Mode() quant.Mode { return s.mode }

// Validate checks a candidate vector without storing it.
func Validate(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vec))
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
		}
	}
	return nil
}

// Append validates vec and writes all enabled representations. The write
// is atomic from the store's perspective: on any error no representation
// grows. Returns the new slot index.
func (s *Store) Append(vec []float32) (int, error) {
	if err := Validate(vec, s.dim); err != nil {
		return 0, err
	}

	if s.mode.Has(quant.SQ8) {
		code := make([]byte, s.dim)
		p, err := quant.EncodeSQ8(vec, code)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidVector, err)
		}
		s.codes = append(s.codes, code...)
		s.params = append(s.params, p)
	}
	if s.mode.Has(quant.Binary) {
		words := make([]uint64, s.words)
		if err := quant.EncodeBinary(vec, words); err != nil {
			// Roll back the SQ8 row appended above.
			if s.mode.Has(quant.SQ8) {
				s.codes = s.codes[:len(s.codes)-s.dim]
				s.params = s.params[:len(s.params)-1]
			}
			return 0, fmt.Errorf("%w: %v", ErrInvalidVector, err)
		}
		s.bits = append(s.bits, words...)
	}

	s.floats = append(s.floats, vec...)
	slot := s.count
	s.count++
	return slot, nil
}

// Float returns the float32 row for a slot. The slice aliases store
// memory and is invalidated by Append and Compact.
func (s *Store) Float(slot int) []float32 {
	off := slot * s.dim
	return s.floats[off : off+s.dim : off+s.dim]
}

// SQ8 returns the code row and scale for a slot. Panics if SQ8 is not
// enabled; callers gate on Mode.
func (s *Store) SQ8(slot int) ([]byte, quant.SQ8Params) {
	off := slot * s.dim
	return s.codes[off : off+s.dim : off+s.dim], s.params[slot]
}

// Binary returns the packed bit row for a slot.
func (s *Store) Binary(slot int) []uint64 {
	off := slot * s.words
	return s.bits[off : off+s.words : off+s.words]
}

// BinaryWords returns the number of uint64 words per binary row.
func (s *Store) BinaryWords() int { return s.words }

// Compact rewrites the store keeping only the slots present in
// newToOld, in order. newToOld[n] is the old slot that becomes slot n.
func (s *Store) Compact(newToOld []int) {
	n := len(newToOld)

	floats := make([]float32, 0, n*s.dim)
	for _, old := range newToOld {
		floats = append(floats, s.Float(old)...)
	}
	s.floats = floats

	if s.mode.Has(quant.SQ8) {
		codes := make([]byte, 0, n*s.dim)
		params := make([]quant.SQ8Params, 0, n)
		for _, old := range newToOld {
			code, p := s.SQ8(old)
			codes = append(codes, code...)
			params = append(params, p)
		}
		s.codes = codes
		s.params = params
	}

	if s.mode.Has(quant.Binary) {
		bits := make([]uint64, 0, n*s.words)
		for _, old := range newToOld {
			bits = append(bits, s.Binary(old)...)
		}
		s.bits = bits
	}

	s.count = n
}

// MemoryBytes estimates the heap bytes held by vector data.
func (s *Store) MemoryBytes() uint64 {
	b := uint64(len(s.floats)) * 4
	b += uint64(len(s.codes))
	b += uint64(len(s.params)) * 8
	b += uint64(len(s.bits)) * 8
	return b
}

// RawFloats exposes the full float matrix for persistence.
func (s *Store) RawFloats() []float32 { return s.floats }

// RawSQ8 exposes the SQ8 codes and params for persistence.
func (s *Store) RawSQ8() ([]byte, []quant.SQ8Params) { return s.codes, s.params }

// RawBinary exposes the packed bit matrix for persistence.
func (s *Store) RawBinary() []uint64 { return s.bits }

// Restore replaces the store contents from persisted data. Lengths must
// be consistent with dim, mode and count; Restore verifies and reports
// mismatches rather than trusting the caller.
func (s *Store) Restore(count int, floats []float32, codes []byte, params []quant.SQ8Params, bits []uint64) error {
	if len(floats) != count*s.dim {
		return fmt.Errorf("float section has %d values, want %d", len(floats), count*s.dim)
	}
	if s.mode.Has(quant.SQ8) {
		if len(codes) != count*s.dim || len(params) != count {
			return fmt.Errorf("sq8 section has %d codes/%d params, want %d/%d",
				len(codes), len(params), count*s.dim, count)
		}
	}
	if s.mode.Has(quant.Binary) {
		if len(bits) != count*s.words {
			return fmt.Errorf("binary section has %d words, want %d", len(bits), count*s.words)
		}
	}

	s.floats = floats
	s.codes = codes
	s.params = params
	s.bits = bits
	s.count = count
	return nil
}
