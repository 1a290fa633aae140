package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidInterval = errors.New("scheduled item must start before it ends")
	ErrKindPayload     = errors.New("scheduled item payload does not match its kind")
)

type ItemKind string

const (
	KindCourse          ItemKind = "course"
	KindSupportActivity ItemKind = "support_activity"
	KindOther           ItemKind = "other"
)

func (k ItemKind) Valid() bool {
	switch k {
	case KindCourse, KindSupportActivity, KindOther:
		return true
	}
	return false
}

// CourseDetails is carried only by items of kind course.
type CourseDetails struct {
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id,omitempty"`
	Room     string `json:"room,omitempty"`
}

// SupportDetails is carried only by items of kind support_activity.
type SupportDetails struct {
	ActivityID  string `json:"activity_id,omitempty"`
	Facilitator string `json:"facilitator,omitempty"`
}

type ScheduledItem struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Color     string    `json:"color,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	AllDay    bool      `json:"all_day"`
	GroupIDs  []string  `json:"group_ids,omitempty"`
	Kind      ItemKind  `json:"kind"`

	Course  *CourseDetails  `json:"course,omitempty"`
	Support *SupportDetails `json:"support,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the interval invariant and that the kind-specific payload
// agrees with Kind.
func (s *ScheduledItem) Validate() error {
	if !s.Start.Before(s.End) {
		return ErrInvalidInterval
	}
	switch s.Kind {
	case KindCourse:
		if s.Support != nil {
			return ErrKindPayload
		}
	case KindSupportActivity:
		if s.Course != nil {
			return ErrKindPayload
		}
	case KindOther:
		if s.Course != nil || s.Support != nil {
			return ErrKindPayload
		}
	default:
		return ErrKindPayload
	}
	return nil
}

func (s *ScheduledItem) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Clone returns a deep copy; the group slice and payload pointers are not
// shared with the receiver.
func (s ScheduledItem) Clone() ScheduledItem {
	out := s
	if s.GroupIDs != nil {
		out.GroupIDs = append([]string(nil), s.GroupIDs...)
	}
	if s.Course != nil {
		c := *s.Course
		out.Course = &c
	}
	if s.Support != nil {
		sp := *s.Support
		out.Support = &sp
	}
	return out
}

type CreateEventRequest struct {
	Title    string          `json:"title" validate:"required,max=200"`
	Color    string          `json:"color" validate:"omitempty,hexcolor"`
	Start    time.Time       `json:"start" validate:"required"`
	End      time.Time       `json:"end" validate:"required,gtfield=Start"`
	AllDay   bool            `json:"all_day"`
	GroupIDs []string        `json:"group_ids"`
	Kind     ItemKind        `json:"kind" validate:"required,oneof=course support_activity other"`
	Course   *CourseDetails  `json:"course"`
	Support  *SupportDetails `json:"support"`
}

type UpdateEventRequest struct {
	Title    *string         `json:"title" validate:"omitempty,max=200"`
	Color    *string         `json:"color" validate:"omitempty,hexcolor"`
	Start    *time.Time      `json:"start"`
	End      *time.Time      `json:"end"`
	AllDay   *bool           `json:"all_day"`
	GroupIDs *[]string       `json:"group_ids"`
	Course   *CourseDetails  `json:"course"`
	Support  *SupportDetails `json:"support"`
}

// Apply patches a copy of item with the non-nil request fields.
func (r *UpdateEventRequest) Apply(item ScheduledItem) ScheduledItem {
	out := item.Clone()
	if r.Title != nil {
		out.Title = *r.Title
	}
	if r.Color != nil {
		out.Color = *r.Color
	}
	if r.Start != nil {
		out.Start = *r.Start
	}
	if r.End != nil {
		out.End = *r.End
	}
	if r.AllDay != nil {
		out.AllDay = *r.AllDay
	}
	if r.GroupIDs != nil {
		out.GroupIDs = append([]string(nil), (*r.GroupIDs)...)
	}
	if r.Course != nil {
		c := *r.Course
		out.Course = &c
	}
	if r.Support != nil {
		sp := *r.Support
		out.Support = &sp
	}
	return out
}

// RescheduleRequest is what a drag on the calendar produces. When End is nil
// the item keeps its duration.
type RescheduleRequest struct {
	Start  time.Time  `json:"start" validate:"required"`
	End    *time.Time `json:"end"`
	AllDay *bool      `json:"all_day"`
}

type ConflictsResponse struct {
	ProjectID string   `json:"project_id"`
	IDs       []string `json:"ids"`
	Count     int      `json:"count"`
}
