package schedule

import (
	"sort"

	"course-agenda-server/internal/domain"
)

// Conflicts returns the ids of every item that overlaps at least one other
// item in the set. It sweeps the start-ordered entries keeping the ones that
// are still open, so each pair is compared at most once.
func (s *IntervalSet) Conflicts() map[string]struct{} {
	out := make(map[string]struct{})
	active := make([]entry, 0)

	for _, e := range s.entries {
		kept := active[:0]
		for _, a := range active {
			if a.span.End.After(e.span.Start) {
				kept = append(kept, a)
			}
		}
		active = kept

		for _, a := range active {
			if a.item.ID == e.item.ID || !a.span.Overlaps(e.span) {
				continue
			}
			out[a.item.ID] = struct{}{}
			out[e.item.ID] = struct{}{}
		}
		active = append(active, e)
	}

	return out
}

// FindConflicts returns the ids of all items that take part in at least one
// overlapping pair. Two timed items conflict when their half-open intervals
// overlap; all-day items count as covering their whole days, so two all-day
// items on the same date always conflict.
func FindConflicts(items []domain.ScheduledItem) map[string]struct{} {
	return NewIntervalSet(items...).Conflicts()
}

// SortedIDs flattens a conflict set into a sorted slice.
func SortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
