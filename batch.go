package edgevec

import (
	"errors"
	"fmt"

	"github.com/edgevec/edgevec/pkg/vstore"
)

// BatchItem is one batch-insert input. ID is an optional
// caller-supplied identifier used only for duplicate detection within
// the batch; storage ids remain monotonic.
type BatchItem struct {
	ID     *uint64
	Vector []float32
}

// SkippedItem records one non-fatal batch failure.
type SkippedItem struct {
	// Index is the item's position in the input.
	Index int
	// Reason classifies the skip: ErrDuplicateID, ErrInvalidVector, or
	// ErrDimensionMismatch.
	Reason error
}

// BatchResult reports a batch insert. IDs holds the assigned ids of
// successful items in input order; Skipped classifies the rest.
type BatchResult struct {
	IDs     []uint64
	Skipped []SkippedItem
}

// ProgressFunc receives batch progress. inserted counts successful
// inserts, not processed items, so skips do not advance progress
// spuriously.
type ProgressFunc func(inserted, total int)

// BatchInsert inserts items with best-effort semantics: invalid
// vectors and duplicate ids are skipped and classified; fatal
// conditions (first-item dimension mismatch, the memory-pressure gate)
// abort with a BatchError carrying the partial result.
//
// The progress callback fires at up to ~10% intervals and always once
// at the end.
func (x *Index) BatchInsert(items []BatchItem, progress ProgressFunc) (BatchResult, error) {
	res := BatchResult{}
	if len(items) == 0 {
		if progress != nil {
			progress(0, 0)
		}
		return res, nil
	}

	// Pre-validate the first vector's dimension: a batch whose shape
	// disagrees with the index fails without inserting anything.
	if len(items[0].Vector) != x.store.Dim() {
		return res, &BatchError{
			ItemIndex: -1,
			Err: fmt.Errorf("%w: batch vectors have dimension %d, index expects %d",
				ErrDimensionMismatch, len(items[0].Vector), x.store.Dim()),
		}
	}

	total := len(items)
	step := total / 10
	if step < 1 {
		step = 1
	}

	seen := make(map[uint64]struct{})
	for i, item := range items {
		if item.ID != nil {
			if _, dup := seen[*item.ID]; dup {
				res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: ErrDuplicateID})
				continue
			}
			seen[*item.ID] = struct{}{}
		}

		id, err := x.Insert(item.Vector)
		if err != nil {
			switch {
			case errors.Is(err, ErrCapacityExceeded):
				// The memory gate firing mid-batch is fatal: surface the
				// partial result and stop.
				return res, &BatchError{ItemIndex: i, Partial: res.IDs, Err: err}
			case errors.Is(err, vstore.ErrDimensionMismatch), errors.Is(err, vstore.ErrInvalidVector):
				res.Skipped = append(res.Skipped, SkippedItem{Index: i, Reason: err})
				continue
			default:
				return res, &BatchError{ItemIndex: i, Partial: res.IDs, Err: err}
			}
		}
		res.IDs = append(res.IDs, id)

		if progress != nil && len(res.IDs)%step == 0 {
			progress(len(res.IDs), total)
		}
	}

	if progress != nil {
		progress(len(res.IDs), total)
	}
	x.log.Debug("batch insert", "inserted", len(res.IDs), "skipped", len(res.Skipped))
	return res, nil
}
