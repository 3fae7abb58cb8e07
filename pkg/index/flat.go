package index

import (
	"container/heap"

	"github.com/bits-and-blooms/bitset"

	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// Flat is the linear-scan index: exact top-k over all live vectors.
// It shares the external contract with HNSW — same insert, search,
// soft-delete, and compaction semantics — and doubles as the
// correctness baseline in graph tests. Intended for small N.
type Flat struct {
	store *vstore.Store
	dist  metric.DistFunc
	kind  metric.Kind

	tombs      *bitset.BitSet
	deletedCnt int

	cleanupThreshold float64
}

// NewFlat creates an empty flat index over the given store.
func NewFlat(store *vstore.Store, kind metric.Kind) (*Flat, error) {
	dist, err := metric.Resolve(kind)
	if err != nil {
		return nil, err
	}
	return &Flat{
		store:            store,
		dist:             dist,
		kind:             kind,
		tombs:            bitset.New(0),
		cleanupThreshold: DefaultCleanupThreshold,
	}, nil
}

// Store exposes the underlying vector store.
func (f *Flat) Store() *vstore.Store { return f.store }

// Metric returns the distance metric kind.
func (f *Flat) Metric() metric.Kind { return f.kind }

// Count returns the number of live vectors.
func (f *Flat) Count() int { return f.store.Count() - f.deletedCnt }

// DeletedCount returns the number of tombstoned vectors.
func (f *Flat) DeletedCount() int { return f.deletedCnt }

// IsDeleted reports whether id is tombstoned.
func (f *Flat) IsDeleted(id uint64) bool {
	return id < uint64(f.store.Count()) && f.tombs.Test(uint(id))
}

// Insert appends a vector; O(1) amortized.
func (f *Flat) Insert(vec []float32) (uint64, error) {
	slot, err := f.store.Append(vec)
	if err != nil {
		return 0, err
	}
	return uint64(slot), nil
}

// Search scans every live vector and keeps the top k in a bounded max
// heap. Ties break by ascending vector ID.
func (f *Flat) Search(q []float32, k int) []Result {
	return f.SearchFilter(q, k, nil)
}

// SearchFilter is Search restricted to ids accepted by allow.
func (f *Flat) SearchFilter(q []float32, k int, allow func(uint64) bool) []Result {
	if k <= 0 || f.Count() == 0 {
		return []Result{}
	}

	var best maxHeap
	for slot := 0; slot < f.store.Count(); slot++ {
		if f.tombs.Test(uint(slot)) {
			continue
		}
		if allow != nil && !allow(uint64(slot)) {
			continue
		}
		d := f.dist(q, f.store.Float(slot))
		if best.Len() < k {
			heap.Push(&best, candidate{idx: slot, dist: d})
		} else if d < best[0].dist {
			// Scanning in ascending slot order keeps the smaller id on
			// score ties at the heap boundary.
			heap.Pop(&best)
			heap.Push(&best, candidate{idx: slot, dist: d})
		}
	}

	cands := []candidate(best)
	return topK(cands, k)
}

// Delete tombstones a vector.
func (f *Flat) Delete(id uint64) bool {
	if id >= uint64(f.store.Count()) || f.tombs.Test(uint(id)) {
		return false
	}
	f.tombs.Set(uint(id))
	f.deletedCnt++
	return true
}

// NeedsCompaction reports whether the deleted fraction has crossed the
// cleanup threshold.
func (f *Flat) NeedsCompaction() bool {
	if f.store.Count() == 0 {
		return false
	}
	return float64(f.deletedCnt)/float64(f.store.Count()) >= f.cleanupThreshold
}

// Compact drops tombstoned rows and remaps surviving IDs densely,
// returning the new-slot -> old-slot map.
func (f *Flat) Compact() []int {
	n := f.store.Count()
	newToOld := make([]int, 0, f.Count())
	for old := 0; old < n; old++ {
		if !f.tombs.Test(uint(old)) {
			newToOld = append(newToOld, old)
		}
	}
	if len(newToOld) == n {
		return newToOld
	}

	f.store.Compact(newToOld)
	f.tombs = bitset.New(uint(len(newToOld)))
	f.deletedCnt = 0
	return newToOld
}

// Tombstones returns the deleted bitmap for persistence.
func (f *Flat) Tombstones() *bitset.BitSet { return f.tombs }

// RestoreTombstones replaces the deleted bitmap from a snapshot.
func (f *Flat) RestoreTombstones(tombs *bitset.BitSet) {
	f.tombs = tombs
	f.deletedCnt = 0
	for i := 0; i < f.store.Count(); i++ {
		if tombs.Test(uint(i)) {
			f.deletedCnt++
		}
	}
}

// Stats summarizes the index for observability.
func (f *Flat) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":          "flat",
		"total_nodes":   f.store.Count(),
		"active_nodes":  f.Count(),
		"deleted_nodes": f.deletedCnt,
		"dimension":     f.store.Dim(),
	}
}
