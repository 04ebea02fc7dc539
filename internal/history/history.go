// Package history implements a capped undo/redo log.
package history

import (
	"sync"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 50

// Log is a generic thread-safe capped history with a cursor.
// The cursor always points at a valid entry once the log is non-empty.
type Log[T any] struct {
	mu       sync.Mutex
	items    []T
	cursor   int
	capacity int
}

// New creates a log seeded with an initial entry.
// A capacity below 1 falls back to DefaultCapacity.
func New[T any](capacity int, initial T) *Log[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log[T]{
		items:    []T{initial},
		capacity: capacity,
	}
}

// Push discards any redo entries after the cursor and appends item.
// Past capacity the oldest entry is dropped and the cursor shifts with it.
func (l *Log[T]) Push(item T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items[:l.cursor+1], item)
	if over := len(l.items) - l.capacity; over > 0 {
		l.items = append(l.items[:0], l.items[over:]...)
	}
	l.cursor = len(l.items) - 1
}

// Undo moves the cursor back one entry and returns it.
// Returns false at the oldest entry.
func (l *Log[T]) Undo() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == 0 {
		var zero T
		return zero, false
	}
	l.cursor--
	return l.items[l.cursor], true
}

// Redo moves the cursor forward one entry and returns it.
// Returns false at the newest entry.
func (l *Log[T]) Redo() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.items)-1 {
		var zero T
		return zero, false
	}
	l.cursor++
	return l.items[l.cursor], true
}

// Current returns the entry at the cursor.
func (l *Log[T]) Current() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[l.cursor]
}

// Len returns the number of entries in the log.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Cursor returns the index of the current entry.
func (l *Log[T]) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// CanUndo reports whether Undo would move the cursor.
func (l *Log[T]) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

// CanRedo reports whether Redo would move the cursor.
func (l *Log[T]) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.items)-1
}

// Entries returns a copy of all entries, oldest first.
func (l *Log[T]) Entries() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.items...)
}

// Reset replaces the whole log with a single entry.
func (l *Log[T]) Reset(initial T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items[:0], initial)
	l.cursor = 0
}
