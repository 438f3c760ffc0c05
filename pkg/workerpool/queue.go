package workerpool

import "container/heap"

// queue is a binary heap of items ordered by less. seq keeps equal items in
// insertion order so dispatch is deterministic.
type queue[T any] struct {
	entries []entry[T]
	less    func(a, b T) bool
}

type entry[T any] struct {
	item T
	seq  int
}

func newQueue[T any](items []T, less func(a, b T) bool) *queue[T] {
	q := &queue[T]{entries: make([]entry[T], 0, len(items)), less: less}
	for i, item := range items {
		q.entries = append(q.entries, entry[T]{item: item, seq: i})
	}
	heap.Init(q)
	return q
}

func (q *queue[T]) Len() int { return len(q.entries) }

func (q *queue[T]) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if q.less(a.item, b.item) {
		return true
	}
	if q.less(b.item, a.item) {
		return false
	}
	return a.seq < b.seq
}

func (q *queue[T]) Swap(i, j int) { q.entries[i], q.entries[j] = q.entries[j], q.entries[i] }

func (q *queue[T]) Push(x any) { q.entries = append(q.entries, x.(entry[T])) }

func (q *queue[T]) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	q.entries = old[:n-1]
	return e
}

func (q *queue[T]) next() (T, bool) {
	if q.Len() == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(q).(entry[T]).item, true
}
