package reduce

import (
	"cmp"
	"container/heap"

	"github.com/tuannm99/novagather/internal/datatable"
)

// cursor is the next unread row of one sorted input.
type cursor struct {
	input int
	ref   RowRef
}

type cursorHeap struct {
	items []cursor
	cmp   Comparator
}

func (h *cursorHeap) Len() int      { return len(h.items) }
func (h *cursorHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *cursorHeap) Push(x any)    { h.items = append(h.items, x.(cursor)) }

// Less breaks ties by input position so equal rows keep arrival order.
func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.cmp(a.ref, b.ref); c != 0 {
		return c < 0
	}
	return a.input < b.input
}

func (h *cursorHeap) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}

// mergeOrdered k-way merges inputs that are each sorted by c.
func mergeOrdered(b *datatable.Builder, tables []*datatable.Table, c Comparator, limit int) error {
	h := &cursorHeap{cmp: c}
	for i, t := range tables {
		if t.NumRows() > 0 {
			h.items = append(h.items, cursor{input: i, ref: RowRef{Table: t, Row: 0}})
		}
	}
	heap.Init(h)
	for h.Len() > 0 {
		if limit > 0 && b.NumRows() >= limit {
			return nil
		}
		top := h.items[0]
		if err := b.AppendRow(top.ref.Table, top.ref.Row); err != nil {
			return err
		}
		if next := top.ref.Row + 1; next < top.ref.Table.NumRows() {
			h.items[0].ref.Row = next
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return nil
}

// ByColumn orders rows by one scalar or string column. Other column types
// compare equal.
func ByColumn(col int, desc bool) Comparator {
	return func(a, b RowRef) int {
		va, errA := a.Table.Value(a.Row, col)
		vb, errB := b.Table.Value(b.Row, col)
		if errA != nil || errB != nil {
			return 0
		}
		c := compareValues(va, vb)
		if desc {
			return -c
		}
		return c
	}
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int32:
		if y, ok := b.(int32); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float32:
		if y, ok := b.(float32); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	return 0
}

// Then chains comparators: b decides only when a reports equal.
func Then(a, b Comparator) Comparator {
	return func(x, y RowRef) int {
		if c := a(x, y); c != 0 {
			return c
		}
		return b(x, y)
	}
}
