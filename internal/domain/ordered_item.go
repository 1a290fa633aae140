package domain

import "time"

type OrderedKind string

const (
	OrderedKindModule   OrderedKind = "module"
	OrderedKindActivity OrderedKind = "activity"
)

// OrderedItem is a course module (ParentID is the course) or an activity
// (ParentID is the module). Order is dense and 1-based within ParentID.
type OrderedItem struct {
	ID       string      `json:"id"`
	ParentID string      `json:"parent_id"`
	Kind     OrderedKind `json:"kind"`
	Order    int         `json:"order"`

	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CloneOrdered copies a list so that the copy shares no backing array with seq.
func CloneOrdered(seq []OrderedItem) []OrderedItem {
	if seq == nil {
		return nil
	}
	out := make([]OrderedItem, len(seq))
	copy(out, seq)
	return out
}

type CreateOrderedItemRequest struct {
	Title   string `json:"title" validate:"required,min=1,max=200"`
	Summary string `json:"summary" validate:"max=2000"`
}

type UpdateOrderedItemRequest struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=200"`
	Summary *string `json:"summary" validate:"omitempty,max=2000"`
}

// ReorderRequest carries a drag gesture. Either BeforeIndex ("insert before
// the item at this index") or AtEnd must be set.
type ReorderRequest struct {
	SourceIndex *int `json:"source_index" validate:"required,min=0"`
	BeforeIndex *int `json:"before_index" validate:"omitempty,min=0"`
	AtEnd       bool `json:"at_end"`
}
