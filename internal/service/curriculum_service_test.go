package service

import (
	"context"
	"errors"
	"testing"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/optimistic"
	"course-agenda-server/internal/ordering"
	"course-agenda-server/internal/websocket"
)

func module(id, courseID string, order int) domain.OrderedItem {
	return domain.OrderedItem{ID: id, ParentID: courseID, Kind: domain.OrderedKindModule, Order: order, Title: id}
}

func activity(id, moduleID string, order int) domain.OrderedItem {
	return domain.OrderedItem{ID: id, ParentID: moduleID, Kind: domain.OrderedKindActivity, Order: order, Title: id}
}

func ids(items []domain.OrderedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intPtr(i int) *int { return &i }

func abcCourse() *mockOrderedRepo {
	return newMockOrderedRepo(module("A", "c1", 1), module("B", "c1", 2), module("C", "c1", 3))
}

func TestCurriculumService_ListDensifies(t *testing.T) {
	repo := newMockOrderedRepo(module("z", "c1", 7), module("y", "c1", 7), module("x", "c1", 3))
	svc := NewCurriculumService(repo, nil)

	items, err := svc.ListModules(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListModules() error = %v", err)
	}
	if !equalIDs(ids(items), "x", "y", "z") || !ordering.IsDense(items) {
		t.Errorf("ListModules() = %+v, want dense [x y z]", items)
	}

	empty, err := svc.ListActivities(context.Background(), "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListActivities() = %#v, %v; want empty list", empty, err)
	}
}

func TestCurriculumService_Reorder(t *testing.T) {
	tests := []struct {
		name string
		req  domain.ReorderRequest
		want []string
	}{
		{name: "first to end", req: domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true}, want: []string{"B", "C", "A"}},
		{name: "last to front", req: domain.ReorderRequest{SourceIndex: intPtr(2), BeforeIndex: intPtr(0)}, want: []string{"C", "A", "B"}},
		{name: "first before last", req: domain.ReorderRequest{SourceIndex: intPtr(0), BeforeIndex: intPtr(2)}, want: []string{"B", "A", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := abcCourse()
			pub := &mockPublisher{}
			svc := NewCurriculumService(repo, pub)

			resp, err := svc.ReorderModules(context.Background(), "c1", &tt.req)
			if err != nil {
				t.Fatalf("ReorderModules() error = %v", err)
			}
			got := resp.State.([]domain.OrderedItem)
			if !resp.OK || !equalIDs(ids(got), tt.want...) || !ordering.IsDense(got) {
				t.Errorf("ReorderModules() = %+v, want %v", got, tt.want)
			}
			for i, id := range tt.want {
				if repo.order(id) != i+1 {
					t.Errorf("stored order of %s = %d, want %d", id, repo.order(id), i+1)
				}
			}
			msg, _ := pub.last()
			if msg.topic != "course:c1" || msg.msgType != websocket.TypeCurriculumState {
				t.Errorf("last publish = %+v", msg)
			}
		})
	}
}

func TestCurriculumService_ReorderRollback(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)
	ctx := context.Background()
	svc.ListModules(ctx, "c1")

	repo.fail = errStoreDown
	resp, err := svc.ReorderModules(ctx, "c1", &domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true})

	var failed *optimistic.MutationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("ReorderModules() error = %v, want MutationFailedError", err)
	}
	if resp.OK || !resp.Reverted || !equalIDs(ids(resp.State.([]domain.OrderedItem)), "A", "B", "C") {
		t.Errorf("ReorderModules() response = %+v", resp)
	}

	items, _ := svc.ListModules(ctx, "c1")
	if !equalIDs(ids(items), "A", "B", "C") {
		t.Errorf("ListModules() after rollback = %v", ids(items))
	}
}

func TestCurriculumService_ReorderNoop(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)

	for _, before := range []int{1, 2} {
		resp, err := svc.ReorderModules(context.Background(), "c1", &domain.ReorderRequest{SourceIndex: intPtr(1), BeforeIndex: intPtr(before)})
		if err != nil || !resp.OK {
			t.Fatalf("ReorderModules(1 before %d) = %+v, %v", before, resp, err)
		}
		if !equalIDs(ids(resp.State.([]domain.OrderedItem)), "A", "B", "C") {
			t.Errorf("no-op changed order: %v", ids(resp.State.([]domain.OrderedItem)))
		}
	}
	if repo.saveCalls != 0 {
		t.Errorf("SaveOrder called %d times for no-op drops", repo.saveCalls)
	}
}

func TestCurriculumService_ReorderInvalid(t *testing.T) {
	tests := []struct {
		name string
		req  domain.ReorderRequest
		want error
	}{
		{name: "source past end", req: domain.ReorderRequest{SourceIndex: intPtr(3), AtEnd: true}, want: ordering.ErrInvalidIndex},
		{name: "target past end", req: domain.ReorderRequest{SourceIndex: intPtr(0), BeforeIndex: intPtr(4)}, want: ordering.ErrInvalidIndex},
		{name: "negative source", req: domain.ReorderRequest{SourceIndex: intPtr(-1), AtEnd: true}, want: ordering.ErrInvalidIndex},
		{name: "missing source", req: domain.ReorderRequest{AtEnd: true}, want: ordering.ErrInvalidIndex},
		{name: "no drop target", req: domain.ReorderRequest{SourceIndex: intPtr(0)}, want: ordering.ErrNoDropTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := abcCourse()
			svc := NewCurriculumService(repo, nil)

			resp, err := svc.ReorderModules(context.Background(), "c1", &tt.req)
			if !errors.Is(err, tt.want) || resp != nil {
				t.Errorf("ReorderModules() = %+v, %v; want %v", resp, err, tt.want)
			}
			if repo.saveCalls != 0 {
				t.Error("invalid reorder reached the store")
			}
		})
	}
}

func TestCurriculumService_SequentialReorders(t *testing.T) {
	svc := NewCurriculumService(abcCourse(), nil)
	ctx := context.Background()

	if _, err := svc.ReorderModules(ctx, "c1", &domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true}); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.ReorderModules(ctx, "c1", &domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(resp.State.([]domain.OrderedItem)); !equalIDs(got, "C", "A", "B") {
		t.Errorf("second reorder = %v, want [C A B]", got)
	}
}

func TestCurriculumService_ReorderInProgress(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)
	ctx := context.Background()
	svc.ListModules(ctx, "c1")

	repo.gate = newWriteGate()
	done := make(chan error, 1)
	go func() {
		_, err := svc.ReorderModules(ctx, "c1", &domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true})
		done <- err
	}()
	<-repo.gate.entered

	if _, err := svc.ReorderModules(ctx, "c1", &domain.ReorderRequest{SourceIndex: intPtr(2), BeforeIndex: intPtr(0)}); !errors.Is(err, optimistic.ErrMutationInProgress) {
		t.Errorf("concurrent ReorderModules() error = %v, want ErrMutationInProgress", err)
	}
	items, _ := svc.ListModules(ctx, "c1")
	if !equalIDs(ids(items), "B", "C", "A") {
		t.Errorf("optimistic order = %v, want [B C A]", ids(items))
	}

	close(repo.gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first ReorderModules() error = %v", err)
	}
}

func TestCurriculumService_Create(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)

	resp, err := svc.CreateModule(context.Background(), "c1", &domain.CreateOrderedItemRequest{Title: "Generics"})
	if err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}
	items := resp.State.([]domain.OrderedItem)
	last := items[len(items)-1]
	if len(items) != 4 || last.Title != "Generics" || last.Order != 4 || last.Kind != domain.OrderedKindModule || last.ParentID != "c1" {
		t.Errorf("CreateModule() = %+v", items)
	}
	if last.CreatedAt.IsZero() {
		t.Error("created item should carry store assigned fields")
	}
	if repo.order(last.ID) != 4 {
		t.Errorf("stored order = %d, want 4", repo.order(last.ID))
	}

	resp, err = svc.CreateActivity(context.Background(), "A", &domain.CreateOrderedItemRequest{Title: "Lab"})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	acts := resp.State.([]domain.OrderedItem)
	if len(acts) != 1 || acts[0].Order != 1 || acts[0].ParentID != "A" || acts[0].Kind != domain.OrderedKindActivity {
		t.Errorf("CreateActivity() = %+v", acts)
	}
}

func TestCurriculumService_CreateRollback(t *testing.T) {
	repo := abcCourse()
	repo.fail = errStoreDown
	svc := NewCurriculumService(repo, nil)

	resp, err := svc.CreateModule(context.Background(), "c1", &domain.CreateOrderedItemRequest{Title: "Generics"})
	if err == nil || resp.OK {
		t.Fatalf("CreateModule() = %+v, %v", resp, err)
	}
	if got := ids(resp.State.([]domain.OrderedItem)); !equalIDs(got, "A", "B", "C") {
		t.Errorf("reverted state = %v", got)
	}
}

func TestCurriculumService_DeleteModuleCascades(t *testing.T) {
	repo := newMockOrderedRepo(
		module("A", "c1", 1), module("B", "c1", 2), module("C", "c1", 3),
		activity("a1", "B", 1), activity("a2", "B", 2),
	)
	pub := &mockPublisher{}
	svc := NewCurriculumService(repo, pub)
	ctx := context.Background()

	acts, _ := svc.ListActivities(ctx, "B")
	if len(acts) != 2 {
		t.Fatalf("ListActivities() = %v", ids(acts))
	}

	resp, err := svc.DeleteModule(ctx, "c1", "B")
	if err != nil {
		t.Fatalf("DeleteModule() error = %v", err)
	}
	got := resp.State.([]domain.OrderedItem)
	if !equalIDs(ids(got), "A", "C") || !ordering.IsDense(got) {
		t.Errorf("DeleteModule() = %+v", got)
	}
	if repo.order("C") != 2 {
		t.Errorf("stored order of C = %d, want 2", repo.order("C"))
	}
	if len(repo.deleteArgs) != 1 || repo.deleteArgs[0] != "module:B" {
		t.Errorf("DeleteAndRenumber calls = %v", repo.deleteArgs)
	}

	acts, _ = svc.ListActivities(ctx, "B")
	if len(acts) != 0 {
		t.Errorf("activities of deleted module = %v", ids(acts))
	}

	found := false
	for _, p := range pub.sent {
		if p.topic == "module:B" {
			found = true
		}
	}
	if !found {
		t.Error("subscribers of the deleted module were not told")
	}
}

func TestCurriculumService_DeleteModuleWhileActivitiesBusy(t *testing.T) {
	repo := newMockOrderedRepo(
		module("A", "c1", 1), module("B", "c1", 2),
		activity("a1", "B", 1), activity("a2", "B", 2),
	)
	pub := &mockPublisher{}
	svc := NewCurriculumService(repo, pub)
	ctx := context.Background()
	svc.ListModules(ctx, "c1")
	svc.ListActivities(ctx, "B")

	gate := newWriteGate()
	repo.gate = gate
	done := make(chan error, 1)
	go func() {
		_, err := svc.ReorderActivities(ctx, "B", &domain.ReorderRequest{SourceIndex: intPtr(0), AtEnd: true})
		done <- err
	}()
	<-gate.entered
	repo.gate = nil

	if _, err := svc.DeleteModule(ctx, "c1", "B"); err != nil {
		t.Fatalf("DeleteModule() error = %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("ReorderActivities() error = %v", err)
	}

	acts, err := svc.ListActivities(ctx, "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 0 {
		t.Errorf("activities of deleted module = %v", ids(acts))
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var lastB *published
	for i := range pub.sent {
		if pub.sent[i].topic == "module:B" {
			lastB = &pub.sent[i]
		}
	}
	if lastB == nil {
		t.Fatal("nothing published for module:B")
	}
	if payload := lastB.payload.(websocket.CurriculumStatePayload); len(payload.Items) != 0 {
		t.Errorf("last module:B push = %v, want empty", ids(payload.Items))
	}
}

func TestCurriculumService_DeleteActivity(t *testing.T) {
	repo := newMockOrderedRepo(activity("a1", "m", 1), activity("a2", "m", 2), activity("a3", "m", 3))
	svc := NewCurriculumService(repo, nil)
	ctx := context.Background()

	resp, err := svc.DeleteActivity(ctx, "m", "a1")
	if err != nil {
		t.Fatalf("DeleteActivity() error = %v", err)
	}
	if got := resp.State.([]domain.OrderedItem); !equalIDs(ids(got), "a2", "a3") || got[0].Order != 1 {
		t.Errorf("DeleteActivity() = %+v", got)
	}

	if _, err := svc.DeleteActivity(ctx, "m", "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteActivity() error = %v, want ErrNotFound", err)
	}
}

func TestCurriculumService_DeleteRollback(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)
	ctx := context.Background()
	svc.ListModules(ctx, "c1")

	repo.fail = errStoreDown
	resp, err := svc.DeleteModule(ctx, "c1", "A")
	if err == nil || resp.OK {
		t.Fatalf("DeleteModule() = %+v, %v", resp, err)
	}
	items, _ := svc.ListModules(ctx, "c1")
	if !equalIDs(ids(items), "A", "B", "C") {
		t.Errorf("ListModules() after rollback = %v", ids(items))
	}
}

func TestCurriculumService_Rename(t *testing.T) {
	repo := abcCourse()
	svc := NewCurriculumService(repo, nil)
	ctx := context.Background()

	title := "Basics"
	resp, err := svc.Rename(ctx, ModulesOf("c1"), "B", &domain.UpdateOrderedItemRequest{Title: &title})
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	items := resp.State.([]domain.OrderedItem)
	if items[1].Title != "Basics" || items[1].Order != 2 || items[1].UpdatedAt.IsZero() {
		t.Errorf("Rename() = %+v", items[1])
	}

	if _, err := svc.Rename(ctx, ModulesOf("c1"), "missing", &domain.UpdateOrderedItemRequest{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rename(missing) error = %v", err)
	}
}

func TestScopeFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   Scope
		wantOK bool
	}{
		{topic: "course:c1", want: ModulesOf("c1"), wantOK: true},
		{topic: "module:m1", want: ActivitiesOf("m1"), wantOK: true},
		{topic: "project:p1"},
		{topic: "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ScopeFromTopic(tt.topic)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ScopeFromTopic(%q) = %+v, %v", tt.topic, got, ok)
			}
			if ok && got.Key() != tt.topic {
				t.Errorf("Key() = %q, want %q", got.Key(), tt.topic)
			}
		})
	}
}
