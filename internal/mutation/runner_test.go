package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

type item struct {
	ID    string
	Value int
}

type capturedNotifications struct {
	mu   sync.Mutex
	list []notify.Notification
}

func (c *capturedNotifications) sink() notify.Notifier {
	return notify.Func(func(_ context.Context, n notify.Notification) {
		c.mu.Lock()
		c.list = append(c.list, n)
		c.mu.Unlock()
	})
}

func (c *capturedNotifications) last(t *testing.T) notify.Notification {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.list) == 0 {
		t.Fatalf("expected a notification")
	}
	return c.list[len(c.list)-1]
}

func newTestStore(caps *capturedNotifications) *Store[item] {
	return NewStore("team-1", func(i item) string { return i.ID }, caps.sink(), logging.NewLogger(), nil)
}

func TestMutateAppliesOptimisticallyAndKeepsOnSuccess(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	s.Replace([]item{{ID: "a", Value: 1}})

	var observedDuringCommit int
	err := s.Mutate(context.Background(), Intent[item]{
		Name:   "bump",
		ItemID: "a",
		Patch:  func(i item) item { i.Value = 2; return i },
		Commit: func(context.Context) error {
			got, _ := s.Get("a")
			observedDuringCommit = got.Value
			return nil
		},
		Success: "bumped",
		Failure: "bump failed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observedDuringCommit != 2 {
		t.Fatalf("patch must be visible before the commit settles, saw %d", observedDuringCommit)
	}
	got, _ := s.Get("a")
	if got.Value != 2 {
		t.Fatalf("expected committed value 2, got %d", got.Value)
	}
	if n := caps.last(t); n.Level != notify.LevelSuccess || n.Message != "bumped" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestMutateRollsBackOnFailure(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	s.Replace([]item{{ID: "a", Value: 1}})

	commitErr := errors.New("server said no")
	err := s.Mutate(context.Background(), Intent[item]{
		Name:    "bump",
		ItemID:  "a",
		Patch:   func(i item) item { i.Value = 99; return i },
		Commit:  func(context.Context) error { return commitErr },
		Success: "bumped",
		Failure: "bump failed",
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	got, _ := s.Get("a")
	if got.Value != 1 {
		t.Fatalf("expected rollback to 1, got %d", got.Value)
	}
	n := caps.last(t)
	if n.Level != notify.LevelError {
		t.Fatalf("expected error notification, got %+v", n)
	}
	if n.Detail != "server said no" {
		t.Fatalf("expected server detail surfaced verbatim, got %q", n.Detail)
	}
}

func TestMutateRejectsConcurrentSameItem(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	s.Replace([]item{{ID: "a", Value: 1}})

	release := make(chan struct{})
	firstDone := make(chan error, 1)
	started := make(chan struct{})

	go func() {
		firstDone <- s.Mutate(context.Background(), Intent[item]{
			Name:   "slow",
			ItemID: "a",
			Patch:  func(i item) item { i.Value = 2; return i },
			Commit: func(context.Context) error {
				close(started)
				<-release
				return nil
			},
			Success: "ok", Failure: "fail",
		})
	}()

	<-started
	err := s.Mutate(context.Background(), Intent[item]{
		Name:    "fast",
		ItemID:  "a",
		Patch:   func(i item) item { i.Value = 3; return i },
		Commit:  func(context.Context) error { return nil },
		Success: "ok", Failure: "fail",
	})
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first mutation failed: %v", err)
	}
	got, _ := s.Get("a")
	if got.Value != 2 {
		t.Fatalf("expected first mutation to win, got %d", got.Value)
	}
}

func TestMutateSkipsStaleRollbackAfterReplace(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	s.Replace([]item{{ID: "a", Value: 1}})

	commitEntered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Mutate(context.Background(), Intent[item]{
			Name:   "doomed",
			ItemID: "a",
			Patch:  func(i item) item { i.Value = 2; return i },
			Commit: func(context.Context) error {
				close(commitEntered)
				<-release
				return errors.New("too late")
			},
			Success: "ok", Failure: "fail",
		})
	}()

	<-commitEntered
	// A refetch lands while the commit is still in flight.
	s.Replace([]item{{ID: "a", Value: 50}})
	close(release)
	<-done

	got, _ := s.Get("a")
	if got.Value != 50 {
		t.Fatalf("stale rollback clobbered refreshed data: got %d", got.Value)
	}
}

func TestMutateUnknownItem(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	err := s.Mutate(context.Background(), Intent[item]{
		Name:   "bump",
		ItemID: "missing",
		Patch:  func(i item) item { return i },
		Commit: func(context.Context) error { return nil },
	})
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestRemoveAndList(t *testing.T) {
	caps := &capturedNotifications{}
	s := newTestStore(caps)
	s.Replace([]item{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	s.Remove("b")

	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Fatalf("unexpected list %+v", list)
	}
}
