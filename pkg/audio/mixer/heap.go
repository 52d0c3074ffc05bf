// Package mixer provides a software [audio.Device]: a sample-accurate mixer
// whose clock advances only as audio is rendered. Voices and timers are kept
// in start-time priority queues and activated on the exact sample they are
// due, so scheduling is gapless regardless of how the renderer is paced.
package mixer

// entry wraps a scheduled item with its due frame. The seq field provides
// FIFO ordering among items due on the same frame.
type entry[T any] struct {
	at   int64  // due position in frames on the mixer clock
	seq  uint64 // monotonic insertion order for FIFO tie-breaking
	item T
}

// schedule implements [container/heap.Interface] as a min-heap ordered by
// due frame (ascending), with FIFO tie-breaking on seq (ascending).
type schedule[T any] []entry[T]

func (h schedule[T]) Len() int { return len(h) }

// Less reports whether element i is due before element j.
func (h schedule[T]) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h schedule[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *schedule[T]) Push(x any) {
	*h = append(*h, x.(entry[T]))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *schedule[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return e
}

// peek returns the earliest due frame. The heap must not be empty.
func (h schedule[T]) peek() int64 { return h[0].at }
