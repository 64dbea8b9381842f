package sim

import "container/heap"

// queueEntry wraps an event with an insertion sequence number so that
// events sharing the same time and priority dispatch in FIFO order.
type queueEntry struct {
	event *Event
	seq   uint64
}

type eventHeap []queueEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if !h[i].event.Time.Equal(h[j].event.Time) {
		return h[i].event.Time.Before(h[j].event.Time)
	}
	if h[i].event.Priority != h[j].event.Priority {
		return h[i].event.Priority < h[j].event.Priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(queueEntry))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// EventQueue is a min-heap of pending events ordered by scheduled time,
// then priority, then insertion order.
type EventQueue struct {
	heap    eventHeap
	nextSeq uint64
}

// NewEventQueue returns an empty initialized queue
func NewEventQueue() *EventQueue {
	q := &EventQueue{heap: make(eventHeap, 0, 64)}
	heap.Init(&q.heap)
	return q
}

// Push schedules an event
func (q *EventQueue) Push(e *Event) {
	q.nextSeq++
	heap.Push(&q.heap, queueEntry{event: e, seq: q.nextSeq})
}

// Pop removes and returns the next event, or nil when the queue is empty
func (q *EventQueue) Pop() *Event {
	if len(q.heap) == 0 {
		return nil
	}
	entry := heap.Pop(&q.heap).(queueEntry)
	return entry.event
}

// Peek returns the next event without removing it, or nil when empty
func (q *EventQueue) Peek() *Event {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].event
}

// Len reports the number of pending events
func (q *EventQueue) Len() int {
	return len(q.heap)
}

// Clear drops all pending events
func (q *EventQueue) Clear() {
	q.heap = q.heap[:0]
}
