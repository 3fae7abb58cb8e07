// Package index implements the HNSW graph and the flat linear-scan
// index. Both share the vector store, the tombstone bitmap, and the
// external contract for insert, search, soft delete, and compaction.
package index

import (
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// HNSW is a hierarchical navigable small-world graph over a vector
// store. The graph is an arena: a flat node slice plus one shared
// neighbor pool, nodes referencing their slice by (offset, length).
// Nodes hold vector IDs, never pointers, so there is no shared
// ownership anywhere in the cycle-rich structure.
//
// Concurrency contract: single writer, multiple readers. Searches may
// run concurrently with each other but not with Insert, Delete, or
// Compact; each search borrows a scratch set from a free list so
// concurrent readers do not share state.
type HNSW struct {
	params Params
	store  *vstore.Store
	dist   metric.DistFunc
	kind   metric.Kind

	nodes []Node
	pool  []uint64

	tombs      *bitset.BitSet
	deletedCnt int

	entry    int // node index of the entry point; -1 when empty
	topLayer int

	rng     *rand.Rand
	scratch scratchPool
}

// NewHNSW creates an empty graph over the given store.
func NewHNSW(store *vstore.Store, kind metric.Kind, params Params) (*HNSW, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	dist, err := metric.Resolve(kind)
	if err != nil {
		return nil, err
	}
	return &HNSW{
		params: params,
		store:  store,
		dist:   dist,
		kind:   kind,
		tombs:  bitset.New(0),
		entry:  -1,
		rng:    rand.New(rand.NewSource(params.Seed)),
	}, nil
}

// Store exposes the underlying vector store.
func (h *HNSW) Store() *vstore.Store { return h.store }

// Params returns the construction parameters.
func (h *HNSW) Params() Params { return h.params }

// Metric returns the distance metric kind.
func (h *HNSW) Metric() metric.Kind { return h.kind }

// Count returns the number of live (non-tombstoned) vectors.
func (h *HNSW) Count() int { return len(h.nodes) - h.deletedCnt }

// DeletedCount returns the number of tombstoned vectors.
func (h *HNSW) DeletedCount() int { return h.deletedCnt }

// IsDeleted reports whether id is tombstoned. Unknown ids are not
// deleted.
func (h *HNSW) IsDeleted(id uint64) bool {
	return id < uint64(len(h.nodes)) && h.tombs.Test(uint(id))
}

// randomLayer draws floor(-ln(U) * 1/ln(M)) with U ~ Uniform(0,1].
func (h *HNSW) randomLayer() int {
	u := h.rng.Float64()
	if u == 0 {
		u = 1
	}
	l := int(math.Floor(-math.Log(u) * h.params.levelMult()))
	if l > maxAssignableLayer {
		l = maxAssignableLayer
	}
	return l
}

// neighbors returns the live prefix of a node's neighbor slice at one
// layer. Entries past the current count hold InvalidID.
func (h *HNSW) neighbors(nodeIdx, layer int) []uint64 {
	n := &h.nodes[nodeIdx]
	base := int(n.NeighborOffset) + layerStart(layer, h.params.M, h.params.M0)
	capa := layerCapacity(layer, h.params.M, h.params.M0)
	region := h.pool[base : base+capa]
	for i, id := range region {
		if id == InvalidID {
			return region[:i]
		}
	}
	return region
}

// layerSlice returns a layer's full-capacity slice, sentinels included.
func (h *HNSW) layerSlice(nodeIdx, layer int) []uint64 {
	n := &h.nodes[nodeIdx]
	base := int(n.NeighborOffset) + layerStart(layer, h.params.M, h.params.M0)
	capa := layerCapacity(layer, h.params.M, h.params.M0)
	return h.pool[base : base+capa]
}

// setNeighbors overwrites a layer's slice with ids and sentinel-fills
// the remainder.
func (h *HNSW) setNeighbors(nodeIdx, layer int, ids []uint64) {
	region := h.layerSlice(nodeIdx, layer)
	n := copy(region, ids)
	for i := n; i < len(region); i++ {
		region[i] = InvalidID
	}
}

// Insert adds a validated vector and links it into the graph. The new
// vector's ID is its storage slot; IDs are monotonic and never reused.
func (h *HNSW) Insert(vec []float32) (uint64, error) {
	slot, err := h.store.Append(vec)
	if err != nil {
		return 0, err
	}

	layer := h.randomLayer()
	capa := regionCapacity(layer, h.params.M, h.params.M0)
	off := len(h.pool)
	for i := 0; i < capa; i++ {
		h.pool = append(h.pool, InvalidID)
	}
	h.nodes = append(h.nodes, Node{
		VectorID:       uint64(slot),
		NeighborOffset: uint32(off),
		NeighborLen:    uint16(capa),
		MaxLayer:       uint8(layer),
	})
	newIdx := len(h.nodes) - 1

	if h.entry < 0 {
		h.entry = newIdx
		h.topLayer = layer
		return uint64(slot), nil
	}

	q := h.store.Float(slot)
	cur := h.entry

	// Greedy descent through layers above the insertion layer: one best
	// candidate per layer.
	for l := h.topLayer; l > layer; l-- {
		cur = h.greedyClosest(q, cur, l)
	}

	// Bounded beam search and diversity pruning from the insertion
	// layer down to 0.
	eps := []candidate{{idx: cur, dist: h.dist(q, h.vectorOf(cur))}}
	startLayer := layer
	if startLayer > h.topLayer {
		startLayer = h.topLayer
	}
	for l := startLayer; l >= 0; l-- {
		found := h.searchLayer(q, eps, h.params.EfConstruction, l, nil)
		m := layerCapacity(l, h.params.M, h.params.M0)
		selected := h.selectNeighbors(q, found, m)

		ids := make([]uint64, len(selected))
		for i, c := range selected {
			ids[i] = uint64(c.idx)
		}
		h.setNeighbors(newIdx, l, ids)

		for _, c := range selected {
			h.link(c.idx, newIdx, l)
		}
		eps = selected
	}

	if layer > h.topLayer {
		h.entry = newIdx
		h.topLayer = layer
	}
	return uint64(slot), nil
}

// vectorOf returns the float row backing a node index.
func (h *HNSW) vectorOf(nodeIdx int) []float32 {
	return h.store.Float(nodeIdx)
}

// greedyClosest walks one layer greedily toward the query and returns
// the local minimum. Tombstoned nodes still participate as waypoints;
// their links stay valid until compaction.
func (h *HNSW) greedyClosest(q []float32, start, layer int) int {
	cur := start
	curDist := h.dist(q, h.vectorOf(cur))
	for {
		improved := false
		for _, nb := range h.neighbors(cur, layer) {
			d := h.dist(q, h.vectorOf(int(nb)))
			if d < curDist {
				cur = int(nb)
				curDist = d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs the bounded beam search at one layer and returns up
// to ef candidates in ascending distance order. A non-nil accept
// predicate restricts which nodes may enter the result set; traversal
// still flows through rejected nodes.
func (h *HNSW) searchLayer(q []float32, entry []candidate, ef, layer int, accept func(uint64) bool) []candidate {
	s := h.scratch.get(uint(len(h.nodes)))
	defer h.scratch.put(s)

	frontier := s.frontier[:0]
	best := s.best[:0]
	fh := (*minHeap)(&frontier)
	bh := (*maxHeap)(&best)

	for _, c := range entry {
		if s.visited.Test(uint(c.idx)) {
			continue
		}
		s.visited.Set(uint(c.idx))
		pushMin(fh, c)
		if accept == nil || accept(uint64(c.idx)) {
			pushMax(bh, c)
		}
	}

	for fh.Len() > 0 {
		cur := popMin(fh)
		if bh.Len() >= ef && cur.dist > (*bh)[0].dist {
			break
		}
		for _, nb := range h.neighbors(cur.idx, layer) {
			ni := int(nb)
			if s.visited.Test(uint(ni)) {
				continue
			}
			s.visited.Set(uint(ni))
			d := h.dist(q, h.vectorOf(ni))
			if bh.Len() < ef || d < (*bh)[0].dist {
				pushMin(fh, candidate{idx: ni, dist: d})
				if accept == nil || accept(uint64(ni)) {
					pushMax(bh, candidate{idx: ni, dist: d})
					if bh.Len() > ef {
						popMax(bh)
					}
				}
			}
		}
	}

	out := make([]candidate, bh.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = popMax(bh)
	}
	s.frontier = frontier
	s.best = best
	return out
}

// selectNeighbors applies the diversity heuristic: walk candidates in
// ascending distance and admit one only if it is closer to the query
// than to every already-admitted neighbor. Remaining slots are filled
// with the closest rejected candidates so sparse regions still get
// their full degree.
func (h *HNSW) selectNeighbors(q []float32, cands []candidate, m int) []candidate {
	if len(cands) <= m {
		out := make([]candidate, len(cands))
		copy(out, cands)
		return out
	}

	selected := make([]candidate, 0, m)
	rejected := make([]candidate, 0, len(cands))

	for _, c := range cands {
		if len(selected) >= m {
			break
		}
		cv := h.vectorOf(c.idx)
		diverse := true
		for _, s := range selected {
			if h.dist(cv, h.vectorOf(s.idx)) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c)
		} else {
			rejected = append(rejected, c)
		}
	}

	for _, c := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	return selected
}

// link back-links newIdx into a neighbor's list, re-pruning on
// overflow.
func (h *HNSW) link(nodeIdx, newIdx, layer int) {
	region := h.layerSlice(nodeIdx, layer)
	for i, id := range region {
		if id == InvalidID {
			region[i] = uint64(newIdx)
			return
		}
	}

	// Overflow: re-select among existing neighbors plus the newcomer
	// with respect to the node's own vector.
	nv := h.vectorOf(nodeIdx)
	cands := make([]candidate, 0, len(region)+1)
	for _, id := range region {
		cands = append(cands, candidate{idx: int(id), dist: h.dist(nv, h.vectorOf(int(id)))})
	}
	cands = append(cands, candidate{idx: newIdx, dist: h.dist(nv, h.vectorOf(newIdx))})
	sortCandidates(cands)

	selected := h.selectNeighbors(nv, cands, len(region))
	ids := make([]uint64, len(selected))
	for i, c := range selected {
		ids[i] = uint64(c.idx)
	}
	h.setNeighbors(nodeIdx, layer, ids)
}

// sortCandidates orders by ascending distance, ties by ascending index
// for determinism.
func sortCandidates(cs []candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0; j-- {
			if cs[j].dist < cs[j-1].dist ||
				cs[j].dist == cs[j-1].dist && cs[j].idx < cs[j-1].idx {
				cs[j], cs[j-1] = cs[j-1], cs[j]
			} else {
				break
			}
		}
	}
}

// scratchPool hands out per-search scratch state. Concurrent readers
// each take their own; entries are reused across queries so the inner
// distance loop never allocates.
type scratchPool struct {
	mu   sync.Mutex
	free []*scratch
}

type scratch struct {
	visited  *bitset.BitSet
	frontier minHeap
	best     maxHeap
}

func (p *scratchPool) get(n uint) *scratch {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) > 0 {
		s := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		s.visited.ClearAll()
		return s
	}
	return &scratch{visited: bitset.New(n)}
}

func (p *scratchPool) put(s *scratch) {
	p.mu.Lock()
	p.free = append(p.free, s)
	p.mu.Unlock()
}
