package orderbook

import "container/heap"

// bidHeap keeps the highest bid price on top. Manipulate it through
// container/heap.
type bidHeap []uint32

func (h bidHeap) Len() int           { return len(h) }
func (h bidHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h bidHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *bidHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }

func (h *bidHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Peek returns the best bid, or 0 when empty.
func (h bidHeap) Peek() uint32 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}

// askHeap keeps the lowest ask price on top.
type askHeap []uint32

func (h askHeap) Len() int           { return len(h) }
func (h askHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h askHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *askHeap) Push(x interface{}) { *h = append(*h, x.(uint32)) }

func (h *askHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Peek returns the best ask, or 0 when empty.
func (h askHeap) Peek() uint32 {
	if len(h) == 0 {
		return 0
	}
	return h[0]
}

// popTop removes the best level. Matching only ever empties the best level,
// so this is O(log n).
func popTop(h heap.Interface, want uint32, top uint32) {
	if h.Len() == 0 || top != want {
		panic("orderbook: emptied level is not at the top of its heap")
	}
	heap.Pop(h)
}
