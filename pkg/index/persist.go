package index

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Accessors used by the persistence layer. They expose internal arenas
// without copying; snapshot writers must not mutate them.

// RawNodes returns the node arena.
func (h *HNSW) RawNodes() []Node { return h.nodes }

// RawPool returns the neighbor pool, sentinels included.
func (h *HNSW) RawPool() []uint64 { return h.pool }

// Tombstones returns the deleted bitmap.
func (h *HNSW) Tombstones() *bitset.BitSet { return h.tombs }

// EntryPoint returns the entry node index, -1 when empty.
func (h *HNSW) EntryPoint() int { return h.entry }

// TopLayer returns the highest populated layer.
func (h *HNSW) TopLayer() int { return h.topLayer }

// RestoreGraph replaces the graph state from a decoded snapshot. The
// vector store must already hold the matching rows; consistency
// between the arenas is verified before anything is committed.
func (h *HNSW) RestoreGraph(nodes []Node, pool []uint64, tombs *bitset.BitSet, entry int, topLayer int) error {
	if len(nodes) != h.store.Count() {
		return fmt.Errorf("node count %d does not match vector count %d", len(nodes), h.store.Count())
	}
	for i := range nodes {
		end := int(nodes[i].NeighborOffset) + int(nodes[i].NeighborLen)
		if end > len(pool) {
			return fmt.Errorf("node %d neighbor region [%d, %d) exceeds pool size %d",
				i, nodes[i].NeighborOffset, end, len(pool))
		}
		want := regionCapacity(int(nodes[i].MaxLayer), h.params.M, h.params.M0)
		if int(nodes[i].NeighborLen) != want {
			return fmt.Errorf("node %d region capacity %d, want %d for layer %d",
				i, nodes[i].NeighborLen, want, nodes[i].MaxLayer)
		}
	}
	if entry >= len(nodes) {
		return fmt.Errorf("entry point %d out of range", entry)
	}

	deleted := 0
	for i := 0; i < len(nodes); i++ {
		if tombs.Test(uint(i)) {
			deleted++
		}
	}

	h.nodes = nodes
	h.pool = pool
	h.tombs = tombs
	h.deletedCnt = deleted
	h.entry = entry
	h.topLayer = topLayer
	h.scratch = scratchPool{}
	return nil
}
