// Package queue provides the write-behind buffer used by the postgres backend.
package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO of pending writes. Items are keyed: pushing an
// item whose key is already queued replaces the queued one in its slot, so a
// flush commits only the newest write per key.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	key   func(T) string
	slots map[string]int
}

// New creates a queue that coalesces items by key. A nil key disables
// coalescing.
func New[T any](key func(T) string) *Queue[T] {
	return &Queue[T]{
		key:   key,
		slots: make(map[string]int),
	}
}

// Push queues items, replacing queued items with the same key.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		q.put(it)
	}
}

// put appends or replaces one item. Callers hold q.mu.
func (q *Queue[T]) put(it T) {
	if q.key == nil {
		q.items = append(q.items, it)
		return
	}
	k := q.key(it)
	if i, ok := q.slots[k]; ok {
		q.items[i] = it
		return
	}
	q.slots[k] = len(q.items)
	q.items = append(q.items, it)
}

// Requeue puts items taken by Take back at the front. An item whose key was
// pushed again in the meantime is dropped in favour of the newer one.
func (q *Queue[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	newer := q.items
	q.items = make([]T, 0, len(items)+len(newer))
	q.slots = make(map[string]int, len(items)+len(newer))
	for _, it := range items {
		if q.key != nil && q.queuedIn(newer, q.key(it)) {
			continue
		}
		q.put(it)
	}
	for _, it := range newer {
		q.put(it)
	}
}

func (q *Queue[T]) queuedIn(items []T, k string) bool {
	for _, it := range items {
		if q.key(it) == k {
			return true
		}
	}
	return false
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take returns every queued item in order and empties the queue.
func (q *Queue[T]) Take() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	q.slots = make(map[string]int, len(out))
	return out
}

// Drain takes every queued item and hands them to write. When write fails
// the items are requeued and the error is returned.
func (q *Queue[T]) Drain(write func([]T) error) error {
	items := q.Take()
	if len(items) == 0 {
		return nil
	}
	if err := write(items); err != nil {
		q.Requeue(items)
		return err
	}
	return nil
}
