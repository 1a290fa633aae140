package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/optimistic"
	"course-agenda-server/internal/ordering"
	"course-agenda-server/internal/repository"
	"course-agenda-server/internal/websocket"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Scope is one ordered list: the modules of a course or the activities of a
// module. Its key doubles as the WebSocket topic of the list.
type Scope struct {
	Kind     domain.OrderedKind
	ParentID string
}

func ModulesOf(courseID string) Scope {
	return Scope{Kind: domain.OrderedKindModule, ParentID: courseID}
}

func ActivitiesOf(moduleID string) Scope {
	return Scope{Kind: domain.OrderedKindActivity, ParentID: moduleID}
}

func (sc Scope) Key() string {
	if sc.Kind == domain.OrderedKindModule {
		return websocket.CourseTopic(sc.ParentID)
	}
	return websocket.ModuleTopic(sc.ParentID)
}

func (sc Scope) resource() string {
	return string(sc.Kind)
}

// ScopeFromTopic resolves a course:<id> or module:<id> topic.
func ScopeFromTopic(topic string) (Scope, bool) {
	kind, id, ok := websocket.ParseTopic(topic)
	if !ok {
		return Scope{}, false
	}
	switch kind {
	case "course":
		return ModulesOf(id), true
	case "module":
		return ActivitiesOf(id), true
	}
	return Scope{}, false
}

// CurriculumService keeps every ordered list in memory and serializes the
// mutations of each list through an optimistic coordinator keyed by scope.
type CurriculumService struct {
	repo      repository.OrderedItemRepository
	publisher Publisher
	coord     *optimistic.Coordinator[[]domain.OrderedItem]
	loads     singleflight.Group

	// scopes whose parent was deleted while they had a mutation in flight
	mu      sync.Mutex
	dropped map[string]bool
}

func NewCurriculumService(
	repo repository.OrderedItemRepository,
	publisher Publisher,
	observers ...optimistic.Observer,
) *CurriculumService {
	return &CurriculumService{
		repo:      repo,
		publisher: publisher,
		coord:     optimistic.New("curriculum", domain.CloneOrdered, observers...),
		dropped:   make(map[string]bool),
	}
}

// TopicFor maps a coordinator target to its topic; they are the same key.
func (s *CurriculumService) TopicFor(target string) string {
	return target
}

func (s *CurriculumService) AddObserver(o optimistic.Observer) {
	s.coord.AddObserver(o)
}

func (s *CurriculumService) ensureLoaded(ctx context.Context, sc Scope) error {
	key := sc.Key()
	if _, ok := s.coord.Get(key); ok {
		return nil
	}

	_, err, _ := s.loads.Do(key, func() (interface{}, error) {
		if _, ok := s.coord.Get(key); ok {
			return nil, nil
		}
		items, err := s.repo.ListByParent(ctx, sc.Kind, sc.ParentID)
		if err != nil {
			return nil, fmt.Errorf("load %ss of %s: %w", sc.Kind, sc.ParentID, err)
		}
		list := ordering.Densify(items)
		if list == nil {
			list = []domain.OrderedItem{}
		}
		s.coord.Load(key, list)
		return nil, nil
	})
	return err
}

func (s *CurriculumService) List(ctx context.Context, sc Scope) ([]domain.OrderedItem, error) {
	if err := s.ensureLoaded(ctx, sc); err != nil {
		return nil, err
	}
	items, _ := s.coord.Get(sc.Key())
	if items == nil {
		items = []domain.OrderedItem{}
	}
	return items, nil
}

func (s *CurriculumService) ListModules(ctx context.Context, courseID string) ([]domain.OrderedItem, error) {
	return s.List(ctx, ModulesOf(courseID))
}

func (s *CurriculumService) ListActivities(ctx context.Context, moduleID string) ([]domain.OrderedItem, error) {
	return s.List(ctx, ActivitiesOf(moduleID))
}

// Create appends a new item at the end of the list.
func (s *CurriculumService) Create(ctx context.Context, sc Scope, req *domain.CreateOrderedItemRequest) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, sc); err != nil {
		return nil, err
	}

	item := domain.OrderedItem{
		ID:       uuid.New().String(),
		ParentID: sc.ParentID,
		Kind:     sc.Kind,
		Title:    req.Title,
		Summary:  req.Summary,
	}

	out, err := s.coord.Update(ctx, sc.Key(),
		func(cur []domain.OrderedItem) ([]domain.OrderedItem, error) {
			return ordering.Append(cur, item), nil
		},
		func(ctx context.Context, next []domain.OrderedItem) ([]domain.OrderedItem, error) {
			last := len(next) - 1
			stored, err := s.repo.Create(ctx, &next[last])
			if err != nil {
				return nil, err
			}
			next[last] = *stored
			return next, nil
		},
	)
	return s.finish(sc, out, err)
}

func (s *CurriculumService) CreateModule(ctx context.Context, courseID string, req *domain.CreateOrderedItemRequest) (*domain.MutationResponse, error) {
	return s.Create(ctx, ModulesOf(courseID), req)
}

func (s *CurriculumService) CreateActivity(ctx context.Context, moduleID string, req *domain.CreateOrderedItemRequest) (*domain.MutationResponse, error) {
	return s.Create(ctx, ActivitiesOf(moduleID), req)
}

// Reorder applies a drag gesture to the list. A drop that leaves the order
// unchanged is answered with the current list and writes nothing.
func (s *CurriculumService) Reorder(ctx context.Context, sc Scope, req *domain.ReorderRequest) (*domain.MutationResponse, error) {
	if req.SourceIndex == nil {
		return nil, ordering.ErrInvalidIndex
	}
	if err := s.ensureLoaded(ctx, sc); err != nil {
		return nil, err
	}

	drop := ordering.DropTarget{BeforeIndex: req.BeforeIndex, AtEnd: req.AtEnd}
	out, err := s.coord.Update(ctx, sc.Key(),
		func(cur []domain.OrderedItem) ([]domain.OrderedItem, error) {
			target, err := drop.Index(len(cur))
			if err != nil {
				return nil, err
			}
			next, err := ordering.ComputeReorder(cur, *req.SourceIndex, target)
			if err != nil {
				return nil, err
			}
			if ordering.IsNoop(*req.SourceIndex, target) {
				return nil, ErrNoChange
			}
			return next, nil
		},
		func(ctx context.Context, next []domain.OrderedItem) ([]domain.OrderedItem, error) {
			if err := s.repo.SaveOrder(ctx, sc.Kind, sc.ParentID, next); err != nil {
				return nil, err
			}
			return next, nil
		},
	)
	if errors.Is(err, ErrNoChange) {
		items, _ := s.coord.Get(sc.Key())
		return &domain.MutationResponse{OK: true, State: items}, nil
	}
	return s.finish(sc, out, err)
}

func (s *CurriculumService) ReorderModules(ctx context.Context, courseID string, req *domain.ReorderRequest) (*domain.MutationResponse, error) {
	return s.Reorder(ctx, ModulesOf(courseID), req)
}

func (s *CurriculumService) ReorderActivities(ctx context.Context, moduleID string, req *domain.ReorderRequest) (*domain.MutationResponse, error) {
	return s.Reorder(ctx, ActivitiesOf(moduleID), req)
}

// Rename patches the title or summary of one item in place.
func (s *CurriculumService) Rename(ctx context.Context, sc Scope, id string, req *domain.UpdateOrderedItemRequest) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, sc); err != nil {
		return nil, err
	}

	out, err := s.coord.Update(ctx, sc.Key(),
		func(cur []domain.OrderedItem) ([]domain.OrderedItem, error) {
			idx := ordering.IndexOf(cur, id)
			if idx < 0 {
				return nil, &NotFoundError{Resource: sc.resource(), ID: id}
			}
			if req.Title != nil {
				cur[idx].Title = *req.Title
			}
			if req.Summary != nil {
				cur[idx].Summary = *req.Summary
			}
			return cur, nil
		},
		func(ctx context.Context, next []domain.OrderedItem) ([]domain.OrderedItem, error) {
			idx := ordering.IndexOf(next, id)
			stored, err := s.repo.Update(ctx, &next[idx])
			if err != nil {
				return nil, err
			}
			next[idx] = *stored
			return next, nil
		},
	)
	return s.finish(sc, out, err)
}

// Delete removes one item and renumbers the rest. Deleting a module also
// drops its activities.
func (s *CurriculumService) Delete(ctx context.Context, sc Scope, id string) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, sc); err != nil {
		return nil, err
	}

	out, err := s.coord.Update(ctx, sc.Key(),
		func(cur []domain.OrderedItem) ([]domain.OrderedItem, error) {
			idx := ordering.IndexOf(cur, id)
			if idx < 0 {
				return nil, &NotFoundError{Resource: sc.resource(), ID: id}
			}
			return ordering.Remove(cur, idx)
		},
		func(ctx context.Context, next []domain.OrderedItem) ([]domain.OrderedItem, error) {
			if err := s.repo.DeleteAndRenumber(ctx, sc.Kind, id, next); err != nil {
				return nil, err
			}
			return next, nil
		},
	)

	if err == nil && sc.Kind == domain.OrderedKindModule {
		s.drop(ActivitiesOf(id))
	}
	return s.finish(sc, out, err)
}

func (s *CurriculumService) DeleteModule(ctx context.Context, courseID, moduleID string) (*domain.MutationResponse, error) {
	return s.Delete(ctx, ModulesOf(courseID), moduleID)
}

func (s *CurriculumService) DeleteActivity(ctx context.Context, moduleID, activityID string) (*domain.MutationResponse, error) {
	return s.Delete(ctx, ActivitiesOf(moduleID), activityID)
}

// Snapshot is the list pushed to subscribers of the scope's topic.
func (s *CurriculumService) Snapshot(ctx context.Context, sc Scope) (*websocket.CurriculumStatePayload, error) {
	items, err := s.List(ctx, sc)
	if err != nil {
		return nil, err
	}
	return &websocket.CurriculumStatePayload{Scope: sc.Key(), Items: items}, nil
}

// drop forgets the cached list of a deleted parent. A list that is busy is
// marked and forgotten by finish once its mutation settles.
func (s *CurriculumService) drop(sc Scope) {
	key := sc.Key()
	s.mu.Lock()
	if s.coord.Forget(key) {
		delete(s.dropped, key)
	} else {
		s.dropped[key] = true
	}
	s.mu.Unlock()
	s.publishList(sc, []domain.OrderedItem{})
}

func (s *CurriculumService) settleDropped(sc Scope) {
	key := sc.Key()
	s.mu.Lock()
	forgotten := s.dropped[key] && s.coord.Forget(key)
	if forgotten {
		delete(s.dropped, key)
	}
	s.mu.Unlock()
	if forgotten {
		s.publishList(sc, []domain.OrderedItem{})
	}
}

func (s *CurriculumService) finish(sc Scope, out *optimistic.Outcome[[]domain.OrderedItem], err error) (*domain.MutationResponse, error) {
	if out != nil {
		s.publishList(sc, out.State)
	}
	s.settleDropped(sc)
	return response(out, err, func(items []domain.OrderedItem, _ bool) interface{} {
		if items == nil {
			return []domain.OrderedItem{}
		}
		return items
	})
}

func (s *CurriculumService) publishList(sc Scope, items []domain.OrderedItem) {
	if s.publisher == nil {
		return
	}
	if items == nil {
		items = []domain.OrderedItem{}
	}
	s.publisher.Publish(sc.Key(), websocket.TypeCurriculumState, websocket.CurriculumStatePayload{Scope: sc.Key(), Items: items})
}
