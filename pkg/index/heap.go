package index

import "container/heap"

// candidate pairs a node index with its distance to the query.
type candidate struct {
	idx  int
	dist float32
}

// minHeap pops the closest candidate first (the expansion frontier).
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest candidate first (the best-seen set, so the
// worst element is evictable in O(log n)). Among equal distances the
// larger index counts as farther, so ties evict the larger id.
type maxHeap []candidate

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].idx > h[j].idx
}
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func pushMin(h *minHeap, c candidate) { heap.Push(h, c) }
func popMin(h *minHeap) candidate     { return heap.Pop(h).(candidate) }
func pushMax(h *maxHeap, c candidate) { heap.Push(h, c) }
func popMax(h *maxHeap) candidate     { return heap.Pop(h).(candidate) }
