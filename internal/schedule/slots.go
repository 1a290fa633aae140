package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"course-agenda-server/internal/domain"
)

var ErrInvalidRange = errors.New("business hours end must be after start")

const (
	DefaultStartHour          = 8
	DefaultEndHour            = 18
	DefaultGranularityMinutes = 60

	ExtendedStartHour = 6
	ExtendedEndHour   = 22
)

// SlotOptions configures the working window. A nil hour falls back to the
// default window (or the extended one when Extended is set) independently of
// the other hour; a zero granularity falls back to one hour.
type SlotOptions struct {
	StartHour          *int `yaml:"start_hour" json:"start_hour,omitempty"`
	EndHour            *int `yaml:"end_hour" json:"end_hour,omitempty"`
	GranularityMinutes int  `yaml:"granularity_minutes" json:"granularity_minutes,omitempty"`
	Extended           bool `yaml:"extended" json:"extended,omitempty"`
}

// Hour returns a pointer to h for building SlotOptions.
func Hour(h int) *int {
	return &h
}

// Window is shorthand for fully specified options.
func Window(startHour, endHour, granularityMinutes int) SlotOptions {
	return SlotOptions{StartHour: Hour(startHour), EndHour: Hour(endHour), GranularityMinutes: granularityMinutes}
}

// Start returns the start hour, or the applicable default when unset.
func (o SlotOptions) Start() int {
	switch {
	case o.StartHour != nil:
		return *o.StartHour
	case o.Extended:
		return ExtendedStartHour
	}
	return DefaultStartHour
}

// End returns the end hour, or the applicable default when unset.
func (o SlotOptions) End() int {
	switch {
	case o.EndHour != nil:
		return *o.EndHour
	case o.Extended:
		return ExtendedEndHour
	}
	return DefaultEndHour
}

func (o SlotOptions) String() string {
	hour := func(h *int) string {
		if h == nil {
			return "--"
		}
		return fmt.Sprintf("%02d", *h)
	}
	s := fmt.Sprintf("%s:00-%s:00/%dm", hour(o.StartHour), hour(o.EndHour), o.GranularityMinutes)
	if o.Extended {
		s += " extended"
	}
	return s
}

// Equal reports whether o and p resolve to the same settings as written,
// comparing hours by value.
func (o SlotOptions) Equal(p SlotOptions) bool {
	return sameHour(o.StartHour, p.StartHour) &&
		sameHour(o.EndHour, p.EndHour) &&
		o.GranularityMinutes == p.GranularityMinutes &&
		o.Extended == p.Extended
}

func sameHour(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Normalize fills unset fields and validates the window.
func (o SlotOptions) Normalize() (SlotOptions, error) {
	start, end := o.Start(), o.End()
	o.StartHour, o.EndHour = Hour(start), Hour(end)
	if o.GranularityMinutes == 0 {
		o.GranularityMinutes = DefaultGranularityMinutes
	}
	if start < 0 || end > 24 || end <= start {
		return o, fmt.Errorf("%w: %02d:00-%02d:00", ErrInvalidRange, start, end)
	}
	if o.GranularityMinutes < 0 {
		return o, fmt.Errorf("%w: granularity %d minutes", ErrInvalidRange, o.GranularityMinutes)
	}
	return o, nil
}

// Merge overlays the fields set in override on top of o. Extended in the
// override moves the hours o inherited from defaults, and the hours the
// override leaves unset, to the extended window.
func (o SlotOptions) Merge(override SlotOptions) SlotOptions {
	out := o
	if override.Extended && !o.Extended {
		out.StartHour, out.EndHour = nil, nil
	}
	if override.StartHour != nil {
		out.StartHour = Hour(*override.StartHour)
	}
	if override.EndHour != nil {
		out.EndHour = Hour(*override.EndHour)
	}
	out.GranularityMinutes = firstNonZero(override.GranularityMinutes, o.GranularityMinutes)
	out.Extended = o.Extended || override.Extended
	return out
}

type Slot struct {
	Label    string                `json:"label"`
	Hour     int                   `json:"hour"`
	Minute   int                   `json:"minute"`
	Start    time.Time             `json:"start"`
	Occupant *domain.ScheduledItem `json:"occupant"`
}

// BuildSlots divides day into slots of GranularityMinutes from StartHour:00
// through EndHour:00 inclusive and records, per hour, the earliest timed
// item starting in that hour on the first slot of the hour. Items starting
// at the same instant are ordered by id.
func BuildSlots(day time.Time, opts SlotOptions, items []domain.ScheduledItem) ([]Slot, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	base := startOfDay(day)
	y, mon, d := base.Date()
	first, last := *opts.StartHour*60, *opts.EndHour*60

	// Slots step in wall-clock minutes so labels keep matching item hours on
	// days with a DST transition.
	slots := make([]Slot, 0, (last-first)/opts.GranularityMinutes+1)
	for off := first; off <= last; off += opts.GranularityMinutes {
		h, m := off/60, off%60
		slots = append(slots, Slot{
			Label:  fmt.Sprintf("%02d:%02d", h, m),
			Hour:   h,
			Minute: m,
			Start:  time.Date(y, mon, d, h, m, 0, 0, base.Location()),
		})
	}

	firstOfHour := make(map[int]int, len(slots))
	for i := len(slots) - 1; i >= 0; i-- {
		firstOfHour[slots[i].Hour] = i
	}

	for _, it := range onDay(base, items) {
		if it.AllDay {
			continue
		}
		idx, ok := firstOfHour[it.Start.In(base.Location()).Hour()]
		if !ok || slots[idx].Occupant != nil {
			continue
		}
		occ := it.Clone()
		slots[idx].Occupant = &occ
	}

	return slots, nil
}

// AllDay returns the all-day items that cover day, ordered by start then id.
func AllDay(day time.Time, items []domain.ScheduledItem) []domain.ScheduledItem {
	base := startOfDay(day)
	span := Span{Start: base, End: base.AddDate(0, 0, 1)}
	var out []domain.ScheduledItem
	for _, it := range items {
		if it.AllDay && EffectiveSpan(it).Overlaps(span) {
			out = append(out, it)
		}
	}
	sortByStart(out)
	return out
}

// onDay returns the items whose start falls on the calendar day beginning at
// base, earliest first.
func onDay(base time.Time, items []domain.ScheduledItem) []domain.ScheduledItem {
	end := base.AddDate(0, 0, 1)
	var out []domain.ScheduledItem
	for _, it := range items {
		s := it.Start.In(base.Location())
		if !s.Before(base) && s.Before(end) {
			out = append(out, it)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(items []domain.ScheduledItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].ID < items[j].ID
	})
}
