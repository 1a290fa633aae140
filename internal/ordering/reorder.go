// Package ordering computes new arrangements of dense, 1-based ordered lists
// such as the modules of a course or the activities of a module.
package ordering

import (
	"errors"
	"sort"

	"course-agenda-server/internal/domain"
)

var (
	ErrInvalidIndex = errors.New("reorder index out of range")
	ErrNoDropTarget = errors.New("drop target must name an index or the end of the list")
)

// DropTarget is where an item was dropped: before the item at BeforeIndex,
// or after the last item when AtEnd is set.
type DropTarget struct {
	BeforeIndex *int
	AtEnd       bool
}

// Index normalizes the drop target into an insertion point for a list of n
// items, where n means the end of the list.
func (d DropTarget) Index(n int) (int, error) {
	if d.AtEnd {
		return n, nil
	}
	if d.BeforeIndex == nil {
		return 0, ErrNoDropTarget
	}
	idx := *d.BeforeIndex
	if idx < 0 || idx > n {
		return 0, ErrInvalidIndex
	}
	return idx, nil
}

// IsNoop reports whether moving sourceIndex to the insertion point
// targetIndex leaves the visible order unchanged.
func IsNoop(sourceIndex, targetIndex int) bool {
	return targetIndex == sourceIndex || targetIndex == sourceIndex+1
}

// ComputeReorder moves the item at sourceIndex to the insertion point
// targetIndex (0..len(seq), expressed against the list before removal) and
// renumbers every item to its 1-based position. The input is never modified.
// A no-op move returns seq itself.
func ComputeReorder(seq []domain.OrderedItem, sourceIndex, targetIndex int) ([]domain.OrderedItem, error) {
	n := len(seq)
	if sourceIndex < 0 || sourceIndex >= n {
		return nil, ErrInvalidIndex
	}
	if targetIndex < 0 || targetIndex > n {
		return nil, ErrInvalidIndex
	}
	if IsNoop(sourceIndex, targetIndex) {
		return seq, nil
	}

	moved := seq[sourceIndex]
	rest := make([]domain.OrderedItem, 0, n)
	rest = append(rest, seq[:sourceIndex]...)
	rest = append(rest, seq[sourceIndex+1:]...)

	if sourceIndex < targetIndex {
		targetIndex--
	}

	out := make([]domain.OrderedItem, 0, n)
	out = append(out, rest[:targetIndex]...)
	out = append(out, moved)
	out = append(out, rest[targetIndex:]...)

	renumber(out)
	return out, nil
}

// Densify sorts a list by its stored order (ties by id) and renumbers it
// 1..N. Lists read back from storage go through here so gaps or duplicates
// never reach a caller.
func Densify(seq []domain.OrderedItem) []domain.OrderedItem {
	out := domain.CloneOrdered(seq)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	renumber(out)
	return out
}

// Remove returns a renumbered copy of seq without the item at index.
func Remove(seq []domain.OrderedItem, index int) ([]domain.OrderedItem, error) {
	if index < 0 || index >= len(seq) {
		return nil, ErrInvalidIndex
	}
	out := make([]domain.OrderedItem, 0, len(seq)-1)
	out = append(out, seq[:index]...)
	out = append(out, seq[index+1:]...)
	renumber(out)
	return out, nil
}

// Append returns a copy of seq with item added at the end as number N+1.
func Append(seq []domain.OrderedItem, item domain.OrderedItem) []domain.OrderedItem {
	out := make([]domain.OrderedItem, 0, len(seq)+1)
	out = append(out, seq...)
	out = append(out, item)
	renumber(out)
	return out
}

// IndexOf returns the position of id in seq, or -1.
func IndexOf(seq []domain.OrderedItem, id string) int {
	for i := range seq {
		if seq[i].ID == id {
			return i
		}
	}
	return -1
}

// IsDense reports whether the order values of seq are exactly 1..N in
// slice order.
func IsDense(seq []domain.OrderedItem) bool {
	for i := range seq {
		if seq[i].Order != i+1 {
			return false
		}
	}
	return true
}

// Changed returns the items of next whose order differs from the same id in
// prev, so a persistence layer only rewrites what moved.
func Changed(prev, next []domain.OrderedItem) []domain.OrderedItem {
	before := make(map[string]int, len(prev))
	for _, it := range prev {
		before[it.ID] = it.Order
	}
	var out []domain.OrderedItem
	for _, it := range next {
		if o, ok := before[it.ID]; !ok || o != it.Order {
			out = append(out, it)
		}
	}
	return out
}

func renumber(seq []domain.OrderedItem) {
	for i := range seq {
		seq[i].Order = i + 1
	}
}
