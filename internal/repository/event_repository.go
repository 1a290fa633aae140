package repository

import (
	"context"
	"fmt"
	"time"

	"course-agenda-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type EventRepository interface {
	Create(ctx context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error)
	FindByID(ctx context.Context, id string) (*domain.ScheduledItem, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.ScheduledItem, error)
	Update(ctx context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error)
	Delete(ctx context.Context, id string) error
}

const eventDocType = "event"

type eventDoc struct {
	DocID string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Type  string `json:"type"`
	domain.ScheduledItem
}

type eventRepository struct {
	db *kivik.DB
}

func NewEventRepository(client *kivik.Client, dbName string) EventRepository {
	return &eventRepository{db: client.DB(dbName)}
}

func eventDocID(id string) string {
	return fmt.Sprintf("event:%s", id)
}

func (r *eventRepository) Create(ctx context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error) {
	now := time.Now().UTC()
	stored := item.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	doc := eventDoc{DocID: eventDocID(item.ID), Type: eventDocType, ScheduledItem: stored}
	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return nil, wrap("failed to create event", err)
	}

	return &stored, nil
}

func (r *eventRepository) FindByID(ctx context.Context, id string) (*domain.ScheduledItem, error) {
	var doc eventDoc
	if err := r.db.Get(ctx, eventDocID(id)).ScanDoc(&doc); err != nil {
		return nil, wrap("failed to find event", err)
	}

	return &doc.ScheduledItem, nil
}

func (r *eventRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.ScheduledItem, error) {
	docs, err := findAll[eventDoc](ctx, r.db, "failed to list events", map[string]interface{}{
		"type":       eventDocType,
		"project_id": projectID,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*domain.ScheduledItem, 0, len(docs))
	for i := range docs {
		items = append(items, &docs[i].ScheduledItem)
	}
	return items, nil
}

func (r *eventRepository) Update(ctx context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error) {
	docID := eventDocID(item.ID)

	var existing eventDoc
	if err := r.db.Get(ctx, docID).ScanDoc(&existing); err != nil {
		return nil, wrap("failed to fetch existing event for update", err)
	}

	stored := item.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	doc := eventDoc{DocID: docID, Rev: existing.Rev, Type: eventDocType, ScheduledItem: stored}
	if _, err := r.db.Put(ctx, docID, doc); err != nil {
		return nil, wrap("failed to update event", err)
	}

	return &stored, nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	docID := eventDocID(id)

	rev, err := r.db.GetRev(ctx, docID)
	if err != nil {
		return wrap("failed to fetch event revision", err)
	}

	if _, err := r.db.Delete(ctx, docID, rev); err != nil {
		return wrap("failed to delete event", err)
	}

	return nil
}
