package calendar

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/daterange"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/events"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/cache"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

type fakeSource struct {
	sources events.Sources
	err     error
	calls   int
}

func (f *fakeSource) FetchRange(ctx context.Context, teamID string, start, end time.Time, active events.Toggles) (events.Sources, error) {
	f.calls++
	if f.err != nil {
		return events.Sources{}, f.err
	}
	return f.sources, nil
}

type fakeTaskDB struct {
	dateErr     error
	assignErr   error
	movedTo     map[string]time.Time
	assignments map[string]struct {
		assignedTo *string
		completed  bool
	}
}

func newFakeTaskDB() *fakeTaskDB {
	return &fakeTaskDB{
		movedTo: make(map[string]time.Time),
		assignments: make(map[string]struct {
			assignedTo *string
			completed  bool
		}),
	}
}

func (f *fakeTaskDB) UpdateTaskDate(ctx context.Context, teamID, taskID string, due time.Time) error {
	if f.dateErr != nil {
		return f.dateErr
	}
	f.movedTo[taskID] = due
	return nil
}

func (f *fakeTaskDB) UpdateTaskAssignment(ctx context.Context, teamID, taskID string, assignedTo *string, completed bool) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assignments[taskID] = struct {
		assignedTo *string
		completed  bool
	}{assignedTo, completed}
	return nil
}

func taskWithDue(id string, due time.Time) models.Task {
	return models.Task{ID: id, TeamID: "team-1", Title: "call back", DueDate: &due}
}

func newTestController(t *testing.T, src *fakeSource, db *fakeTaskDB, sink *[]notify.Notification) *Controller {
	t.Helper()
	notifier := notify.Func(func(ctx context.Context, n notify.Notification) {
		*sink = append(*sink, n)
	})
	c := cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{})
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	return New("team-1", src, db, c, notifier, logging.NewLogger(), nil, now)
}

func TestRefreshPopulatesEvents(t *testing.T) {
	var notes []notify.Notification
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	c := newTestController(t, src, newFakeTaskDB(), &notes)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evs := c.Events(time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC))
	if len(evs) != 1 || evs[0].ID != "task-t1" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestRefreshFailureKeepsDataAndNotifies(t *testing.T) {
	var notes []notify.Notification
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	c := newTestController(t, src, newFakeTaskDB(), &notes)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Next fetch fails: the previous events must survive and the user must
	// hear about it.
	src.err = fmt.Errorf("connection reset")
	c.InvalidateRangeCache()
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}

	evs := c.Events(time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC))
	if len(evs) != 1 || evs[0].ID != "task-t1" {
		t.Fatalf("previous data lost: %+v", evs)
	}
	last := notes[len(notes)-1]
	if last.Level != notify.LevelError || last.Detail != "connection reset" {
		t.Fatalf("expected error notification, got %+v", last)
	}
}

func TestStaleRefreshStillNotifiesOnFetchFailure(t *testing.T) {
	var mu sync.Mutex
	var notes []notify.Notification
	notifier := notify.Func(func(ctx context.Context, n notify.Notification) {
		mu.Lock()
		notes = append(notes, n)
		mu.Unlock()
	})

	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	c := cache.New(cache.Options{TTL: time.Millisecond, StaleWhileRevalidate: time.Hour}, cache.MetricsHooks{})
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	ctrl := New("team-1", src, newFakeTaskDB(), c, notifier, logging.NewLogger(), nil, now)

	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Let the entry go stale, then break the source. The stale value is
	// served so Refresh reports no error, but the background revalidation
	// still fails and the user must hear about that.
	time.Sleep(5 * time.Millisecond)
	src.err = fmt.Errorf("upstream timeout")
	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("stale refresh should not surface the error, got: %v", err)
	}
	evs := ctrl.Events(now)
	if len(evs) != 1 || evs[0].ID != "task-t1" {
		t.Fatalf("stale data lost: %+v", evs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		var found bool
		for _, n := range notes {
			if n.Level == notify.LevelError && n.Detail == "upstream timeout" {
				found = true
			}
		}
		mu.Unlock()
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no error notification from background revalidation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshUsesCache(t *testing.T) {
	var notes []notify.Notification
	src := &fakeSource{}
	c := newTestController(t, src, newFakeTaskDB(), &notes)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 fetch within TTL, got %d", src.calls)
	}

	c.InvalidateRangeCache()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after invalidation, got %d calls", src.calls)
	}
}

func TestNavigationChangesRange(t *testing.T) {
	var notes []notify.Notification
	src := &fakeSource{}
	c := newTestController(t, src, newFakeTaskDB(), &notes)
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

	if err := c.SetGranularity(context.Background(), daterange.Month); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := c.Range()

	if err := c.Navigate(context.Background(), daterange.NavNext, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := c.Range()
	if !after.Start.After(before.Start) {
		t.Fatalf("next month must move the range forward: %v -> %v", before, after)
	}

	if err := c.Navigate(context.Background(), daterange.NavToday, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	today := c.Range()
	if !daterange.Contains(today, now) {
		t.Fatalf("today must return to the current period: %+v", today)
	}
}

func TestSetTogglesRefetches(t *testing.T) {
	var notes []notify.Notification
	src := &fakeSource{}
	c := newTestController(t, src, newFakeTaskDB(), &notes)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetToggles(context.Background(), events.Toggles{Tasks: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Different toggles mean a different cache key, so the source is hit again.
	if src.calls != 2 {
		t.Fatalf("expected refetch on toggle change, got %d calls", src.calls)
	}
	if got := c.Toggles(); got != (events.Toggles{Tasks: true}) {
		t.Fatalf("toggles not applied: %+v", got)
	}
}

func TestMoveTaskDateOptimistic(t *testing.T) {
	var notes []notify.Notification
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	db := newFakeTaskDB()
	c := newTestController(t, src, db, &notes)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newDue := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	if err := c.HandleDateDrop(context.Background(), "t1", "day-2024-06-14"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := db.movedTo["t1"]; !got.Equal(newDue) {
		t.Fatalf("date not persisted: %v", got)
	}
	task, _ := c.Task("t1")
	if task.DueDate == nil || !task.DueDate.Equal(newDue) {
		t.Fatalf("optimistic state not applied: %+v", task)
	}
}

func TestMoveTaskDateRollsBack(t *testing.T) {
	var notes []notify.Notification
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	db := newFakeTaskDB()
	db.dateErr = fmt.Errorf("task was deleted")
	c := newTestController(t, src, db, &notes)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.MoveTaskDate(context.Background(), "t1", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected commit error")
	}
	task, _ := c.Task("t1")
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Fatalf("rollback failed: %+v", task)
	}
	last := notes[len(notes)-1]
	if last.Level != notify.LevelError || last.Detail != "task was deleted" {
		t.Fatalf("expected error detail, got %+v", last)
	}
}

func TestToggleTaskCycle(t *testing.T) {
	var notes []notify.Notification
	due := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{sources: events.Sources{Tasks: []models.Task{taskWithDue("t1", due)}}}
	db := newFakeTaskDB()
	c := newTestController(t, src, db, &notes)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unassigned -> assigned to the toggling user.
	if err := c.ToggleTask(context.Background(), "t1", "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, _ := c.Task("t1")
	if task.AssignedTo == nil || *task.AssignedTo != "user-1" || task.IsCompleted {
		t.Fatalf("expected assignment, got %+v", task)
	}

	// Assigned -> completed, assignee kept.
	if err := c.ToggleTask(context.Background(), "t1", "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, _ = c.Task("t1")
	if !task.IsCompleted || task.AssignedTo == nil || *task.AssignedTo != "user-1" {
		t.Fatalf("expected completion, got %+v", task)
	}

	// Completed -> reopened, assignee kept.
	if err := c.ToggleTask(context.Background(), "t1", "user-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, _ = c.Task("t1")
	if task.IsCompleted || task.AssignedTo == nil || *task.AssignedTo != "user-1" {
		t.Fatalf("reopening must keep the original assignee, got %+v", task)
	}
}

func TestEventsShowSkeletonsWhileLoading(t *testing.T) {
	var notes []notify.Notification
	src := &fakeSource{}
	c := newTestController(t, src, newFakeTaskDB(), &notes)

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	evs := c.Events(now)
	if len(evs) != events.FallbackSkeletonCount {
		t.Fatalf("expected %d skeletons, got %d", events.FallbackSkeletonCount, len(evs))
	}
	for _, e := range evs {
		if e.SourceType != events.SourceSkeleton {
			t.Fatalf("expected skeleton events, got %+v", e)
		}
	}
}
