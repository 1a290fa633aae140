package repository

import (
	"context"
	"fmt"
	"time"

	"course-agenda-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// OrderedItemRepository stores course modules and module activities. A
// reorder or a delete is written as one bulk request so a single mutation
// maps to a single remote call.
type OrderedItemRepository interface {
	Create(ctx context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error)
	ListByParent(ctx context.Context, kind domain.OrderedKind, parentID string) ([]domain.OrderedItem, error)
	Update(ctx context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error)
	SaveOrder(ctx context.Context, kind domain.OrderedKind, parentID string, items []domain.OrderedItem) error
	DeleteAndRenumber(ctx context.Context, kind domain.OrderedKind, id string, remaining []domain.OrderedItem) error
}

type orderedDoc struct {
	DocID string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Type  string `json:"type"`
	domain.OrderedItem
}

type deletedDoc struct {
	DocID   string `json:"_id"`
	Rev     string `json:"_rev"`
	Deleted bool   `json:"_deleted"`
}

type orderedItemRepository struct {
	db *kivik.DB
}

func NewOrderedItemRepository(client *kivik.Client, dbName string) OrderedItemRepository {
	return &orderedItemRepository{db: client.DB(dbName)}
}

func orderedDocID(kind domain.OrderedKind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

func (r *orderedItemRepository) Create(ctx context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error) {
	now := time.Now().UTC()
	stored := *item
	stored.CreatedAt = now
	stored.UpdatedAt = now

	doc := orderedDoc{DocID: orderedDocID(item.Kind, item.ID), Type: string(item.Kind), OrderedItem: stored}
	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return nil, wrap(fmt.Sprintf("failed to create %s", item.Kind), err)
	}

	return &stored, nil
}

func (r *orderedItemRepository) ListByParent(ctx context.Context, kind domain.OrderedKind, parentID string) ([]domain.OrderedItem, error) {
	docs, err := r.findDocs(ctx, kind, parentID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderedItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.OrderedItem)
	}
	return items, nil
}

func (r *orderedItemRepository) Update(ctx context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error) {
	docID := orderedDocID(item.Kind, item.ID)

	var existing orderedDoc
	if err := r.db.Get(ctx, docID).ScanDoc(&existing); err != nil {
		return nil, wrap(fmt.Sprintf("failed to fetch existing %s for update", item.Kind), err)
	}

	stored := *item
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	doc := orderedDoc{DocID: docID, Rev: existing.Rev, Type: string(item.Kind), OrderedItem: stored}
	if _, err := r.db.Put(ctx, docID, doc); err != nil {
		return nil, wrap(fmt.Sprintf("failed to update %s", item.Kind), err)
	}

	return &stored, nil
}

func (r *orderedItemRepository) SaveOrder(ctx context.Context, kind domain.OrderedKind, parentID string, items []domain.OrderedItem) error {
	existing, err := r.findDocs(ctx, kind, parentID)
	if err != nil {
		return err
	}

	docs, err := renumberedDocs(existing, items)
	if err != nil {
		return fmt.Errorf("failed to save %s order: %w", kind, err)
	}
	if len(docs) == 0 {
		return nil
	}

	results, err := r.db.BulkDocs(ctx, docs)
	if err != nil {
		return wrap(fmt.Sprintf("failed to save %s order", kind), err)
	}
	return bulkErr(fmt.Sprintf("failed to save %s order", kind), results)
}

// DeleteAndRenumber deletes one item, renumbers its former siblings, and for
// modules also deletes the module's activities.
func (r *orderedItemRepository) DeleteAndRenumber(ctx context.Context, kind domain.OrderedKind, id string, remaining []domain.OrderedItem) error {
	docID := orderedDocID(kind, id)

	var target orderedDoc
	if err := r.db.Get(ctx, docID).ScanDoc(&target); err != nil {
		return wrap(fmt.Sprintf("failed to fetch %s for delete", kind), err)
	}

	siblings, err := r.findDocs(ctx, kind, target.ParentID)
	if err != nil {
		return err
	}

	renumbered, err := renumberedDocs(siblings, remaining)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	docs := append([]interface{}{deletedDoc{DocID: docID, Rev: target.Rev, Deleted: true}}, renumbered...)

	if kind == domain.OrderedKindModule {
		children, err := r.findDocs(ctx, domain.OrderedKindActivity, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			docs = append(docs, deletedDoc{DocID: c.DocID, Rev: c.Rev, Deleted: true})
		}
	}

	results, err := r.db.BulkDocs(ctx, docs)
	if err != nil {
		return wrap(fmt.Sprintf("failed to delete %s", kind), err)
	}
	return bulkErr(fmt.Sprintf("failed to delete %s", kind), results)
}

// renumberedDocs returns update documents for the items whose stored order
// differs from the wanted one. Every wanted item must be stored.
func renumberedDocs(existing []orderedDoc, wanted []domain.OrderedItem) ([]interface{}, error) {
	byID := make(map[string]orderedDoc, len(existing))
	for _, d := range existing {
		byID[d.ID] = d
	}

	now := time.Now().UTC()
	var docs []interface{}
	for _, it := range wanted {
		d, ok := byID[it.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s %s", ErrOutOfSync, it.Kind, it.ID)
		}
		if d.Order == it.Order {
			continue
		}
		d.Order = it.Order
		d.UpdatedAt = now
		docs = append(docs, d)
	}
	return docs, nil
}

func (r *orderedItemRepository) findDocs(ctx context.Context, kind domain.OrderedKind, parentID string) ([]orderedDoc, error) {
	return findAll[orderedDoc](ctx, r.db, fmt.Sprintf("failed to list %ss", kind), map[string]interface{}{
		"type":      string(kind),
		"parent_id": parentID,
	})
}
