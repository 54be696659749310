package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// ErrInFlight is returned when a mutation targets an item that already has an
// unsettled mutation. Concurrent mutations to the same item race remotely and
// the loser's rollback would clobber the winner's state, so they are rejected
// outright.
var ErrInFlight = errors.New("mutation already in flight for item")

// ErrUnknownItem is returned when the target id is not in the store.
var ErrUnknownItem = errors.New("unknown item")

// Metrics are the optional prometheus hooks for the mutation pipeline.
type Metrics struct {
	Mutations      *prometheus.CounterVec   // labels: intent, status
	Rollbacks      *prometheus.CounterVec   // labels: intent
	CommitDuration *prometheus.HistogramVec // labels: intent
}

// Intent names a mutation and carries its commit/patch pair. The patch is
// applied locally before the commit runs; if the commit fails the item is
// restored to its pre-patch snapshot.
type Intent[T any] struct {
	Name    string
	ItemID  string
	Patch   func(T) T
	Commit  func(ctx context.Context) error
	Success string // notification on success
	Failure string // generic notification when the commit error has no detail
}

// Store owns the canonical in-memory item list for one feature and runs
// every mutation through the snapshot/patch/commit/reconcile protocol. The
// list is never observable in a state other than pre-mutation or
// server-confirmed post-mutation.
type Store[T any] struct {
	mu       sync.Mutex
	items    map[string]T
	order    []string
	inflight map[string]struct{}
	gen      map[string]uint64

	keyOf    func(T) string
	teamID   string
	notifier notify.Notifier
	logger   logging.Logger
	metrics  *Metrics
}

// NewStore creates an empty store. keyOf extracts the stable id of an item.
func NewStore[T any](teamID string, keyOf func(T) string, notifier notify.Notifier, logger logging.Logger, metrics *Metrics) *Store[T] {
	return &Store[T]{
		items:    make(map[string]T),
		inflight: make(map[string]struct{}),
		gen:      make(map[string]uint64),
		keyOf:    keyOf,
		teamID:   teamID,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Replace swaps in a fresh server snapshot, reconciling any server-computed
// fields the optimistic patches could not know. Generation counters advance
// so a commit that settles after the refetch cannot roll back fresh data.
func (s *Store[T]) Replace(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T, len(items))
	s.order = s.order[:0]
	for _, it := range items {
		id := s.keyOf(it)
		s.items[id] = it
		s.order = append(s.order, id)
		s.gen[id]++
	}
}

// Upsert adds or overwrites a single item.
func (s *Store[T]) Upsert(item T) {
	id := s.keyOf(item)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = item
	s.gen[id]++
}

// Remove drops an item from the list.
func (s *Store[T]) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	s.gen[id]++
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the current state of one item.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// List returns the items in insertion order.
func (s *Store[T]) List() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the item count.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Mutate runs one optimistic mutation to completion:
//
//  1. snapshot the item for rollback
//  2. apply the patch synchronously (immediately visible to readers)
//  3. run the remote commit, the only suspension point
//  4. on success notify; on failure restore the snapshot and notify with the
//     collaborator's error detail when present
//
// A second mutation for the same item while one is unsettled returns
// ErrInFlight without touching state. A rollback is skipped if the item was
// replaced or removed while the commit was in flight (stale settlement).
func (s *Store[T]) Mutate(ctx context.Context, intent Intent[T]) error {
	s.mu.Lock()
	prev, ok := s.items[intent.ItemID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownItem, intent.ItemID)
	}
	if _, busy := s.inflight[intent.ItemID]; busy {
		s.mu.Unlock()
		s.count(intent.Name, "rejected")
		return ErrInFlight
	}
	s.inflight[intent.ItemID] = struct{}{}
	s.gen[intent.ItemID]++
	myGen := s.gen[intent.ItemID]
	s.items[intent.ItemID] = intent.Patch(prev)
	s.mu.Unlock()

	start := time.Now()
	err := intent.Commit(ctx)
	if s.metrics != nil && s.metrics.CommitDuration != nil {
		s.metrics.CommitDuration.WithLabelValues(intent.Name).Observe(time.Since(start).Seconds())
	}

	s.mu.Lock()
	delete(s.inflight, intent.ItemID)
	if err != nil {
		if s.gen[intent.ItemID] == myGen {
			if _, still := s.items[intent.ItemID]; still {
				s.items[intent.ItemID] = prev
			}
		}
		s.mu.Unlock()

		if s.metrics != nil && s.metrics.Rollbacks != nil {
			s.metrics.Rollbacks.WithLabelValues(intent.Name).Inc()
		}
		s.count(intent.Name, "failed")
		s.logger.WithError(err).WithFields(logging.Fields{
			"intent":  intent.Name,
			"item_id": intent.ItemID,
			"team_id": s.teamID,
		}).Warn("Mutation rolled back")
		s.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Message: intent.Failure,
			Detail:  err.Error(),
			TeamID:  s.teamID,
			ItemID:  intent.ItemID,
			At:      time.Now(),
		})
		return err
	}
	s.mu.Unlock()

	s.count(intent.Name, "committed")
	s.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelSuccess,
		Message: intent.Success,
		TeamID:  s.teamID,
		ItemID:  intent.ItemID,
		At:      time.Now(),
	})
	return nil
}

func (s *Store[T]) count(intent, status string) {
	if s.metrics != nil && s.metrics.Mutations != nil {
		s.metrics.Mutations.WithLabelValues(intent, status).Inc()
	}
}
