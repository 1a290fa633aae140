package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/repository"
	"course-agenda-server/internal/schedule"
	"course-agenda-server/internal/websocket"
)

var errStoreDown = errors.New("store unavailable")

// writeGate lets a test hold a remote write open. entered receives once per
// write that reached the store; the write finishes when release is closed.
type writeGate struct {
	entered chan struct{}
	release chan struct{}
}

func newWriteGate() *writeGate {
	return &writeGate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *writeGate) wait() {
	if g == nil {
		return
	}
	g.entered <- struct{}{}
	<-g.release
}

type mockEventRepo struct {
	mu        sync.Mutex
	events    map[string]domain.ScheduledItem
	listCalls int
	fail      error
	gate      *writeGate
	listGate  chan struct{}
}

func newMockEventRepo(items ...domain.ScheduledItem) *mockEventRepo {
	m := &mockEventRepo{events: make(map[string]domain.ScheduledItem)}
	for _, it := range items {
		m.events[it.ID] = it
	}
	return m
}

func (m *mockEventRepo) write() error {
	m.gate.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

func (m *mockEventRepo) Create(_ context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error) {
	if err := m.write(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := item.Clone()
	stored.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored.UpdatedAt = stored.CreatedAt
	m.events[item.ID] = stored
	return &stored, nil
}

func (m *mockEventRepo) FindByID(_ context.Context, id string) (*domain.ScheduledItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.events[id]; ok {
		return &it, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockEventRepo) ListByProject(_ context.Context, projectID string) ([]*domain.ScheduledItem, error) {
	if m.listGate != nil {
		<-m.listGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*domain.ScheduledItem
	for _, it := range m.events {
		if it.ProjectID == projectID {
			c := it.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Update(_ context.Context, item *domain.ScheduledItem) (*domain.ScheduledItem, error) {
	if err := m.write(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[item.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	stored := item.Clone()
	stored.UpdatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	m.events[item.ID] = stored
	return &stored, nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	if err := m.write(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *mockEventRepo) stored(id string) (domain.ScheduledItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.events[id]
	return it, ok
}

type mockOrderedRepo struct {
	mu         sync.Mutex
	items      map[string]domain.OrderedItem
	saveCalls  int
	deleteArgs []string
	fail       error
	gate       *writeGate
}

func newMockOrderedRepo(items ...domain.OrderedItem) *mockOrderedRepo {
	m := &mockOrderedRepo{items: make(map[string]domain.OrderedItem)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockOrderedRepo) write() error {
	m.gate.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

func (m *mockOrderedRepo) Create(_ context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error) {
	if err := m.write(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *item
	stored.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.items[item.ID] = stored
	return &stored, nil
}

func (m *mockOrderedRepo) ListByParent(_ context.Context, kind domain.OrderedKind, parentID string) ([]domain.OrderedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderedItem
	for _, it := range m.items {
		if it.Kind == kind && it.ParentID == parentID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockOrderedRepo) Update(_ context.Context, item *domain.OrderedItem) (*domain.OrderedItem, error) {
	if err := m.write(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *item
	stored.UpdatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	m.items[item.ID] = stored
	return &stored, nil
}

func (m *mockOrderedRepo) SaveOrder(_ context.Context, _ domain.OrderedKind, _ string, items []domain.OrderedItem) error {
	if err := m.write(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	for _, it := range items {
		if cur, ok := m.items[it.ID]; ok {
			cur.Order = it.Order
			m.items[it.ID] = cur
		}
	}
	return nil
}

func (m *mockOrderedRepo) DeleteAndRenumber(_ context.Context, kind domain.OrderedKind, id string, remaining []domain.OrderedItem) error {
	if err := m.write(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteArgs = append(m.deleteArgs, string(kind)+":"+id)
	delete(m.items, id)
	for _, it := range remaining {
		if cur, ok := m.items[it.ID]; ok {
			cur.Order = it.Order
			m.items[it.ID] = cur
		}
	}
	if kind == domain.OrderedKindModule {
		for childID, it := range m.items {
			if it.Kind == domain.OrderedKindActivity && it.ParentID == id {
				delete(m.items, childID)
			}
		}
	}
	return nil
}

func (m *mockOrderedRepo) order(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Order
}

type published struct {
	topic   string
	msgType websocket.MessageType
	payload interface{}
}

type mockPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *mockPublisher) Publish(topic string, msgType websocket.MessageType, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, msgType: msgType, payload: payload})
}

func (p *mockPublisher) last() (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return published{}, false
	}
	return p.sent[len(p.sent)-1], true
}

type fixedHours map[string]schedule.SlotOptions

func (f fixedHours) For(projectID string) schedule.SlotOptions {
	return f[projectID]
}
