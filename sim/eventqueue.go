package sim

import (
	"container/heap"
	"sync"
)

// eventQueue keeps pending events ordered by (time, seq).
type eventQueue interface {
	Push(evt *event)
	Pop() *event
	Peek() *event
	Len() int
	Clear()
}

// heapEventQueue is a binary-heap event queue. The lock only protects
// against readers on other goroutines, such as the monitoring server; all
// mutation happens on the goroutine that runs the engine.
type heapEventQueue struct {
	sync.Mutex
	events eventHeap
}

func newHeapEventQueue() *heapEventQueue {
	q := new(heapEventQueue)
	q.events = make([]*event, 0)
	heap.Init(&q.events)

	return q
}

func (q *heapEventQueue) Push(evt *event) {
	q.Lock()
	heap.Push(&q.events, evt)
	q.Unlock()
}

func (q *heapEventQueue) Pop() *event {
	q.Lock()
	defer q.Unlock()

	if q.events.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*event)
}

func (q *heapEventQueue) Peek() *event {
	q.Lock()
	defer q.Unlock()

	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0]
}

func (q *heapEventQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return q.events.Len()
}

func (q *heapEventQueue) Clear() {
	q.Lock()
	q.events = q.events[:0]
	q.Unlock()
}

type eventHeap []*event

func (h eventHeap) Len() int {
	return len(h)
}

// Less orders by time and breaks ties by sequence id, so that events
// scheduled for the same time fire in scheduling order.
func (h eventHeap) Less(i, j int) bool {
	return h[i].before(h[j])
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return evt
}
