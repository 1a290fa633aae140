// Package schedule answers time questions about a project's agenda: which
// items overlap, which items conflict, and how a working day divides into
// display slots. Everything here is pure and works on the snapshot it is given.
package schedule

import (
	"sort"
	"time"

	"course-agenda-server/internal/domain"
)

// Span is the effective half-open interval an item occupies for overlap
// purposes.
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) Overlaps(o Span) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// EffectiveSpan returns [start, end) for timed items. All-day items are
// widened to whole days in the item's own location: from midnight of the
// start day to midnight after the last covered day.
func EffectiveSpan(item domain.ScheduledItem) Span {
	if !item.AllDay {
		return Span{Start: item.Start, End: item.End}
	}
	loc := item.Start.Location()
	first := startOfDay(item.Start)
	last := startOfDay(item.End.In(loc).Add(-time.Nanosecond))
	if last.Before(first) {
		last = first
	}
	return Span{Start: first, End: last.AddDate(0, 0, 1)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type entry struct {
	item domain.ScheduledItem
	span Span
}

// IntervalSet keeps scheduled items ordered by effective start.
type IntervalSet struct {
	entries []entry
}

func NewIntervalSet(items ...domain.ScheduledItem) *IntervalSet {
	s := &IntervalSet{entries: make([]entry, 0, len(items))}
	for _, it := range items {
		s.entries = append(s.entries, entry{item: it, span: EffectiveSpan(it)})
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		return less(s.entries[i], s.entries[j])
	})
	return s
}

func less(a, b entry) bool {
	if !a.span.Start.Equal(b.span.Start) {
		return a.span.Start.Before(b.span.Start)
	}
	return a.item.ID < b.item.ID
}

// Add inserts item, replacing any existing item with the same id.
func (s *IntervalSet) Add(item domain.ScheduledItem) {
	s.Remove(item.ID)
	e := entry{item: item, span: EffectiveSpan(item)}
	i := sort.Search(len(s.entries), func(i int) bool {
		return less(e, s.entries[i])
	})
	s.entries = append(s.entries, entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
}

// Remove deletes the item with the given id and reports whether it existed.
func (s *IntervalSet) Remove(id string) bool {
	for i := range s.entries {
		if s.entries[i].item.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *IntervalSet) Len() int {
	return len(s.entries)
}

// Items returns the items in effective-start order.
func (s *IntervalSet) Items() []domain.ScheduledItem {
	out := make([]domain.ScheduledItem, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.item
	}
	return out
}

// Overlapping returns every item whose effective span intersects [start, end).
func (s *IntervalSet) Overlapping(start, end time.Time) []domain.ScheduledItem {
	q := Span{Start: start, End: end}
	var out []domain.ScheduledItem
	for _, e := range s.entries {
		if !e.span.Start.Before(end) {
			break
		}
		if e.span.Overlaps(q) {
			out = append(out, e.item)
		}
	}
	return out
}
