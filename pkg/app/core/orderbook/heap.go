package orderbook

import "container/heap"

// tickHeap implements heap.Interface over price-level tick indexes.
// With max set the highest tick is on top (bids), otherwise the lowest (asks).
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type tickHeap struct {
	ticks []int64
	max   bool
}

func newBidHeap() *tickHeap { return &tickHeap{max: true} }
func newAskHeap() *tickHeap { return &tickHeap{} }

func (h tickHeap) Len() int { return len(h.ticks) }
func (h tickHeap) Less(i, j int) bool {
	if h.max {
		return h.ticks[i] > h.ticks[j]
	}
	return h.ticks[i] < h.ticks[j]
}
func (h tickHeap) Swap(i, j int) { h.ticks[i], h.ticks[j] = h.ticks[j], h.ticks[i] }

func (h *tickHeap) Push(x interface{}) {
	h.ticks = append(h.ticks, x.(int64))
}

func (h *tickHeap) Pop() interface{} {
	old := h.ticks
	n := len(old)
	x := old[n-1]
	h.ticks = old[0 : n-1]
	return x
}

// peek returns the best tick without removing it
func (h *tickHeap) peek() (int64, bool) {
	if len(h.ticks) == 0 {
		return 0, false
	}
	return h.ticks[0], true
}

// remove drops a tick from the heap (O(N) search, only used when a
// non-top level empties)
func (h *tickHeap) remove(tick int64) {
	for i, t := range h.ticks {
		if t == tick {
			heap.Remove(h, i)
			return
		}
	}
}
