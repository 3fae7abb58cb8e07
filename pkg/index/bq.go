package index

import (
	"container/heap"
	"errors"

	"github.com/bits-and-blooms/bitset"

	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/quant"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// ErrNoBinaryShadow is returned by quantized search when the index was
// created without binary quantization.
var ErrNoBinaryShadow = errors.New("binary quantization not enabled")

// Rescore factor bounds: 2-10 is the useful range for the recall
// target; 1 degenerates to no rescoring.
const (
	MinRescoreFactor = 1
	MaxRescoreFactor = 10
)

// searchBinary is the shared first-pass scan: top-k live vectors by
// Hamming distance over the packed sign-bit codes. The query is packed
// once; each row costs a handful of popcounts.
func searchBinary(store *vstore.Store, tombs *bitset.BitSet, q []float32, k int) ([]Result, error) {
	if !store.Mode().Has(quant.Binary) {
		return nil, ErrNoBinaryShadow
	}
	if err := vstore.Validate(q, store.Dim()); err != nil {
		return nil, err
	}
	if k <= 0 || store.Count() == 0 {
		return []Result{}, nil
	}

	qbits := make([]uint64, store.BinaryWords())
	if err := quant.EncodeBinary(q, qbits); err != nil {
		return nil, err
	}

	var best maxHeap
	for slot := 0; slot < store.Count(); slot++ {
		if tombs.Test(uint(slot)) {
			continue
		}
		d := float32(metric.HammingWords(qbits, store.Binary(slot)))
		if best.Len() < k {
			heap.Push(&best, candidate{idx: slot, dist: d})
		} else if d < best[0].dist {
			heap.Pop(&best)
			heap.Push(&best, candidate{idx: slot, dist: d})
		}
	}

	return topK([]candidate(best), k), nil
}

// rescore recomputes exact float distances for the first-pass
// candidates and returns the refined top-k.
func rescore(store *vstore.Store, dist metric.DistFunc, q []float32, firstPass []Result, k int) []Result {
	cands := make([]candidate, len(firstPass))
	for i, r := range firstPass {
		cands[i] = candidate{idx: int(r.ID), dist: dist(q, store.Float(int(r.ID)))}
	}
	return topK(cands, k)
}

func clampRescoreFactor(factor int) int {
	if factor < MinRescoreFactor {
		return MinRescoreFactor
	}
	if factor > MaxRescoreFactor {
		return MaxRescoreFactor
	}
	return factor
}

// SearchBQ runs the quantized-only search: Hamming distance over the
// binary shadow, scores are bit counts.
func (h *HNSW) SearchBQ(q []float32, k int) ([]Result, error) {
	return searchBinary(h.store, h.tombs, q, k)
}

// SearchBQRescored runs the Hamming first pass over k*factor
// candidates, then rescores them with the index's float metric.
func (h *HNSW) SearchBQRescored(q []float32, k, factor int) ([]Result, error) {
	factor = clampRescoreFactor(factor)
	firstPass, err := searchBinary(h.store, h.tombs, q, k*factor)
	if err != nil {
		return nil, err
	}
	return rescore(h.store, h.dist, q, firstPass, k), nil
}

// SearchBQ runs the quantized-only search over the flat store.
func (f *Flat) SearchBQ(q []float32, k int) ([]Result, error) {
	return searchBinary(f.store, f.tombs, q, k)
}

// SearchBQRescored runs the Hamming first pass, then rescores with the
// float metric.
func (f *Flat) SearchBQRescored(q []float32, k, factor int) ([]Result, error) {
	factor = clampRescoreFactor(factor)
	firstPass, err := searchBinary(f.store, f.tombs, q, k*factor)
	if err != nil {
		return nil, err
	}
	return rescore(f.store, f.dist, q, firstPass, k), nil
}
