package index

import "github.com/bits-and-blooms/bitset"

// Compact removes tombstoned vectors and remaps surviving IDs densely.
// Two single passes: first compute the new-slot -> old-slot map over
// live nodes in order, then rebuild the node arena and neighbor pool
// with translated IDs, dropping tombstoned neighbors. The returned map
// lets callers re-key external per-vector state (metadata) the same
// way. Compacting a tombstone-free index is an idempotent no-op.
func (h *HNSW) Compact() []int {
	newToOld := make([]int, 0, h.Count())
	oldToNew := make([]int, len(h.nodes))
	for old := range h.nodes {
		if h.tombs.Test(uint(old)) {
			oldToNew[old] = -1
			continue
		}
		oldToNew[old] = len(newToOld)
		newToOld = append(newToOld, old)
	}

	if len(newToOld) == len(h.nodes) {
		// Nothing tombstoned; leave the arena untouched.
		return newToOld
	}

	oldEntry := h.entry

	nodes := make([]Node, 0, len(newToOld))
	pool := make([]uint64, 0, len(h.pool))

	for newIdx, old := range newToOld {
		maxLayer := int(h.nodes[old].MaxLayer)
		capa := regionCapacity(maxLayer, h.params.M, h.params.M0)
		off := len(pool)

		for l := 0; l <= maxLayer; l++ {
			layerCap := layerCapacity(l, h.params.M, h.params.M0)
			written := 0
			for _, nb := range h.neighbors(old, l) {
				translated := oldToNew[int(nb)]
				if translated < 0 {
					continue // neighbor was tombstoned
				}
				pool = append(pool, uint64(translated))
				written++
			}
			for ; written < layerCap; written++ {
				pool = append(pool, InvalidID)
			}
		}

		nodes = append(nodes, Node{
			VectorID:       uint64(newIdx),
			NeighborOffset: uint32(off),
			NeighborLen:    uint16(capa),
			MaxLayer:       uint8(maxLayer),
		})
	}

	h.store.Compact(newToOld)
	h.nodes = nodes
	h.pool = pool
	h.tombs = bitset.New(uint(len(nodes)))
	h.deletedCnt = 0

	// The entry point follows its node to the new slot. If it was
	// tombstoned, the highest-layer survivor takes over.
	h.entry = -1
	h.topLayer = 0
	if oldEntry >= 0 && oldToNew[oldEntry] >= 0 {
		h.entry = oldToNew[oldEntry]
		h.topLayer = int(nodes[h.entry].MaxLayer)
	} else {
		for i := range nodes {
			if h.entry < 0 || int(nodes[i].MaxLayer) > h.topLayer {
				h.entry = i
				h.topLayer = int(nodes[i].MaxLayer)
			}
		}
	}

	// Scratch bitsets are sized for the old arena; drop them.
	h.scratch = scratchPool{}

	return newToOld
}
