package index

import "sort"

// Search returns the top-k live vectors by ascending distance. Empty
// index yields an empty result, never an error. Ties break by
// ascending vector ID.
func (h *HNSW) Search(q []float32, k int) []Result {
	return h.SearchFilter(q, k, nil)
}

// SearchFilter is Search restricted to ids accepted by allow. A nil
// allow admits everything. Tombstoned nodes are skipped after their
// distance is computed but traversal continues through their links.
func (h *HNSW) SearchFilter(q []float32, k int, allow func(uint64) bool) []Result {
	if k <= 0 || h.entry < 0 || h.Count() == 0 {
		return []Result{}
	}

	accept := func(id uint64) bool {
		if h.tombs.Test(uint(id)) {
			return false
		}
		return allow == nil || allow(id)
	}

	cur := h.entry
	for l := h.topLayer; l >= 1; l-- {
		cur = h.greedyClosest(q, cur, l)
	}

	ef := h.params.EfSearch
	if ef < k {
		ef = k
	}
	entry := []candidate{{idx: cur, dist: h.dist(q, h.vectorOf(cur))}}
	found := h.searchLayer(q, entry, ef, 0, accept)

	return topK(found, k)
}

// topK orders candidates by (distance, id) and converts the first k.
func topK(cands []candidate, k int) []Result {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].idx < cands[j].idx
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{ID: uint64(c.idx), Score: c.dist}
	}
	return out
}

// Delete tombstones a vector. Storage is reclaimed by Compact; until
// then the id stays a valid graph waypoint. Returns false for unknown
// or already-deleted ids.
func (h *HNSW) Delete(id uint64) bool {
	if id >= uint64(len(h.nodes)) || h.tombs.Test(uint(id)) {
		return false
	}
	h.tombs.Set(uint(id))
	h.deletedCnt++
	return true
}

// NeedsCompaction reports whether the deleted fraction has crossed the
// cleanup threshold.
func (h *HNSW) NeedsCompaction() bool {
	if len(h.nodes) == 0 {
		return false
	}
	return float64(h.deletedCnt)/float64(len(h.nodes)) >= h.params.CleanupThreshold
}

// Stats summarizes graph shape for observability.
func (h *HNSW) Stats() map[string]interface{} {
	totalEdges := 0
	layerDist := make(map[int]int)
	for i := range h.nodes {
		if h.tombs.Test(uint(i)) {
			continue
		}
		layerDist[int(h.nodes[i].MaxLayer)]++
		for l := 0; l <= int(h.nodes[i].MaxLayer); l++ {
			totalEdges += len(h.neighbors(i, l))
		}
	}

	entry := int64(-1)
	if h.entry >= 0 {
		entry = int64(h.entry)
	}
	return map[string]interface{}{
		"type":               "hnsw",
		"total_nodes":        len(h.nodes),
		"active_nodes":       h.Count(),
		"deleted_nodes":      h.deletedCnt,
		"total_edges":        totalEdges,
		"top_layer":          h.topLayer,
		"layer_distribution": layerDist,
		"entry_point":        entry,
		"m":                  h.params.M,
		"m0":                 h.params.M0,
		"ef_construction":    h.params.EfConstruction,
		"ef_search":          h.params.EfSearch,
	}
}
