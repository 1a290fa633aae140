package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/optimistic"
	"course-agenda-server/internal/repository"
	"course-agenda-server/internal/schedule"
	"course-agenda-server/internal/websocket"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Publisher pushes a message to every subscriber of a topic.
type Publisher interface {
	Publish(topic string, msgType websocket.MessageType, payload interface{})
}

// HoursResolver returns the business-hours window of a project.
type HoursResolver interface {
	For(projectID string) schedule.SlotOptions
}

// AgendaService keeps the local snapshot of every project's agenda and runs
// every change through an optimistic coordinator keyed by "<project>/<event>".
type AgendaService struct {
	repo      repository.EventRepository
	hours     HoursResolver
	publisher Publisher
	coord     *optimistic.Coordinator[domain.ScheduledItem]

	loads    singleflight.Group
	loadedMu sync.Mutex
	loaded   map[string]bool
}

func NewAgendaService(
	repo repository.EventRepository,
	hours HoursResolver,
	publisher Publisher,
	observers ...optimistic.Observer,
) *AgendaService {
	return &AgendaService{
		repo:      repo,
		hours:     hours,
		publisher: publisher,
		coord:     optimistic.New("agenda", domain.ScheduledItem.Clone, observers...),
		loaded:    make(map[string]bool),
	}
}

func eventTarget(projectID, eventID string) string {
	return projectID + "/" + eventID
}

// TopicFor maps a coordinator target to the topic of its project.
func (s *AgendaService) TopicFor(target string) string {
	projectID, _, ok := strings.Cut(target, "/")
	if !ok {
		return ""
	}
	return websocket.ProjectTopic(projectID)
}

func (s *AgendaService) AddObserver(o optimistic.Observer) {
	s.coord.AddObserver(o)
}

func (s *AgendaService) ensureLoaded(ctx context.Context, projectID string) error {
	if s.isLoaded(projectID) {
		return nil
	}

	_, err, _ := s.loads.Do(projectID, func() (interface{}, error) {
		if s.isLoaded(projectID) {
			return nil, nil
		}

		items, err := s.repo.ListByProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("load agenda of project %s: %w", projectID, err)
		}

		for _, it := range items {
			if err := it.Validate(); err != nil {
				log.Printf("[agenda] skipping stored event %s: %v", it.ID, err)
				continue
			}
			s.coord.Load(eventTarget(projectID, it.ID), *it)
		}

		s.loadedMu.Lock()
		s.loaded[projectID] = true
		s.loadedMu.Unlock()
		return nil, nil
	})
	return err
}

func (s *AgendaService) isLoaded(projectID string) bool {
	s.loadedMu.Lock()
	defer s.loadedMu.Unlock()
	return s.loaded[projectID]
}

// items returns the local events of a loaded project ordered by start, then id.
func (s *AgendaService) items(projectID string) []domain.ScheduledItem {
	prefix := projectID + "/"
	items := s.coord.Select(func(target string, _ domain.ScheduledItem) bool {
		return strings.HasPrefix(target, prefix)
	})
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (s *AgendaService) List(ctx context.Context, projectID string) ([]domain.ScheduledItem, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}
	return s.items(projectID), nil
}

func (s *AgendaService) Get(ctx context.Context, projectID, eventID string) (*domain.ScheduledItem, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}
	item, ok := s.coord.Get(eventTarget(projectID, eventID))
	if !ok {
		return nil, &NotFoundError{Resource: "event", ID: eventID}
	}
	return &item, nil
}

func (s *AgendaService) Create(ctx context.Context, projectID string, req *domain.CreateEventRequest) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}

	item := domain.ScheduledItem{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     req.Title,
		Color:     req.Color,
		Start:     req.Start,
		End:       req.End,
		AllDay:    req.AllDay,
		GroupIDs:  req.GroupIDs,
		Kind:      req.Kind,
		Course:    req.Course,
		Support:   req.Support,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	out, err := s.coord.Create(ctx, eventTarget(projectID, item.ID), item,
		func(ctx context.Context, proposed domain.ScheduledItem) (domain.ScheduledItem, error) {
			stored, err := s.repo.Create(ctx, &proposed)
			if err != nil {
				return domain.ScheduledItem{}, err
			}
			return *stored, nil
		},
	)
	return s.finish(projectID, out, err)
}

func (s *AgendaService) Update(ctx context.Context, projectID, eventID string, req *domain.UpdateEventRequest) (*domain.MutationResponse, error) {
	return s.mutate(ctx, projectID, eventID, func(cur domain.ScheduledItem) (domain.ScheduledItem, error) {
		next := req.Apply(cur)
		if err := next.Validate(); err != nil {
			return cur, err
		}
		return next, nil
	})
}

// Reschedule moves an event to a new start. Without an explicit end the
// event keeps its duration.
func (s *AgendaService) Reschedule(ctx context.Context, projectID, eventID string, req *domain.RescheduleRequest) (*domain.MutationResponse, error) {
	return s.mutate(ctx, projectID, eventID, func(cur domain.ScheduledItem) (domain.ScheduledItem, error) {
		next := cur.Clone()
		next.Start = req.Start
		if req.End != nil {
			next.End = *req.End
		} else {
			next.End = req.Start.Add(cur.Duration())
		}
		if req.AllDay != nil {
			next.AllDay = *req.AllDay
		}
		if err := next.Validate(); err != nil {
			return cur, err
		}
		return next, nil
	})
}

func (s *AgendaService) mutate(
	ctx context.Context,
	projectID, eventID string,
	propose func(domain.ScheduledItem) (domain.ScheduledItem, error),
) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}

	out, err := s.coord.Update(ctx, eventTarget(projectID, eventID), propose,
		func(ctx context.Context, proposed domain.ScheduledItem) (domain.ScheduledItem, error) {
			stored, err := s.repo.Update(ctx, &proposed)
			if err != nil {
				return domain.ScheduledItem{}, err
			}
			return *stored, nil
		},
	)
	if errors.Is(err, optimistic.ErrNotFound) {
		return nil, &NotFoundError{Resource: "event", ID: eventID}
	}
	return s.finish(projectID, out, err)
}

// Delete removes an event. An event already gone from the store counts as
// deleted.
func (s *AgendaService) Delete(ctx context.Context, projectID, eventID string) (*domain.MutationResponse, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}

	out, err := s.coord.Delete(ctx, eventTarget(projectID, eventID),
		func(ctx context.Context, _ domain.ScheduledItem) error {
			err := s.repo.Delete(ctx, eventID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		},
	)
	if errors.Is(err, optimistic.ErrNotFound) {
		return nil, &NotFoundError{Resource: "event", ID: eventID}
	}
	return s.finish(projectID, out, err)
}

func (s *AgendaService) finish(projectID string, out *optimistic.Outcome[domain.ScheduledItem], err error) (*domain.MutationResponse, error) {
	if out != nil {
		s.publish(projectID)
	}
	return response(out, err, func(item domain.ScheduledItem, present bool) interface{} {
		if !present {
			return nil
		}
		return item
	})
}

func (s *AgendaService) Conflicts(ctx context.Context, projectID string) (*domain.ConflictsResponse, error) {
	items, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ids := schedule.SortedIDs(schedule.FindConflicts(items))
	return &domain.ConflictsResponse{ProjectID: projectID, IDs: ids, Count: len(ids)}, nil
}

// Slots lays the project's events for day over its business hours, with any
// non-zero field of opts taking precedence over the project's configuration.
func (s *AgendaService) Slots(ctx context.Context, projectID string, day time.Time, opts schedule.SlotOptions) ([]schedule.Slot, error) {
	items, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var base schedule.SlotOptions
	if s.hours != nil {
		base = s.hours.For(projectID)
	}
	return schedule.BuildSlots(day, base.Merge(opts), items)
}

func (s *AgendaService) AllDay(ctx context.Context, projectID string, day time.Time) ([]domain.ScheduledItem, error) {
	items, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return schedule.AllDay(day, items), nil
}

// Snapshot is the full agenda state pushed to project subscribers.
func (s *AgendaService) Snapshot(ctx context.Context, projectID string) (*websocket.AgendaStatePayload, error) {
	if err := s.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}
	return s.snapshot(projectID), nil
}

func (s *AgendaService) snapshot(projectID string) *websocket.AgendaStatePayload {
	items := s.items(projectID)
	return &websocket.AgendaStatePayload{
		ProjectID: projectID,
		Events:    items,
		Conflicts: schedule.SortedIDs(schedule.FindConflicts(items)),
	}
}

func (s *AgendaService) publish(projectID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(websocket.ProjectTopic(projectID), websocket.TypeAgendaState, s.snapshot(projectID))
}
