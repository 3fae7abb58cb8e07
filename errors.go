package edgevec

import (
	"errors"
	"fmt"

	"github.com/edgevec/edgevec/pkg/persist"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// Common errors.
var (
	// ErrInvalidConfig is returned when index configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when a vector's dimension does
	// not match the index.
	ErrDimensionMismatch = vstore.ErrDimensionMismatch

	// ErrInvalidVector is returned for empty or non-finite vectors.
	ErrInvalidVector = vstore.ErrInvalidVector

	// ErrNotFound is returned when an id names no live vector.
	ErrNotFound = errors.New("vector not found")

	// ErrDuplicateID is returned when a batch repeats a caller-supplied
	// id.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCapacityExceeded is returned when the memory-pressure gate
	// refuses an insert.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrMetadataDisabled is returned by metadata operations on an
	// index created without metadata support.
	ErrMetadataDisabled = errors.New("metadata not enabled")

	// Persistence errors, re-exported so callers match on one package.
	ErrCorrupted           = persist.ErrCorrupted
	ErrTruncatedData       = persist.ErrTruncatedData
	ErrIncompatibleVersion = persist.ErrIncompatibleVersion
	ErrInvalidMagic        = persist.ErrInvalidMagic
	ErrUnalignedBuffer     = persist.ErrUnalignedBuffer
)

// IndexError wraps errors with operation context.
type IndexError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("edgevec: %v", e.Err)
	}
	return fmt.Sprintf("edgevec: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IndexError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *IndexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}

// BatchError is the fatal outcome of a batch insert. Partial carries
// the ids inserted before the abort.
type BatchError struct {
	// ItemIndex is the input position that triggered the abort, or -1
	// for pre-validation failures.
	ItemIndex int
	Partial   []uint64
	Err       error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.ItemIndex < 0 {
		return fmt.Sprintf("batch insert: %v", e.Err)
	}
	return fmt.Sprintf("batch insert: item %d: %v", e.ItemIndex, e.Err)
}

// Unwrap returns the underlying error.
func (e *BatchError) Unwrap() error { return e.Err }
