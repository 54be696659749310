package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/daterange"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/dnd"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/events"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/mutation"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/cache"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// EventSource fetches the raw records behind the calendar.
type EventSource interface {
	FetchRange(ctx context.Context, teamID string, start, end time.Time, active events.Toggles) (events.Sources, error)
}

// TaskStore persists the task mutations the calendar issues.
type TaskStore interface {
	UpdateTaskDate(ctx context.Context, teamID, taskID string, due time.Time) error
	UpdateTaskAssignment(ctx context.Context, teamID, taskID string, assignedTo *string, completed bool) error
}

// Controller aggregates CRM records into one calendar for a team: fetch by
// visible range, source toggles, navigation, and optimistic task mutations.
type Controller struct {
	teamID   string
	source   EventSource
	taskDB   TaskStore
	tasks    *mutation.Store[models.Task]
	cache    *cache.Cache
	notifier notify.Notifier
	logger   logging.Logger

	mu          sync.Mutex
	anchor      time.Time
	granularity daterange.Granularity
	active      events.Toggles
	sources     events.Sources
	lastEvents  []events.CalendarEvent
	loading     bool
}

// New creates a calendar controller anchored on now, month view, all source
// categories enabled.
func New(teamID string, source EventSource, taskDB TaskStore, c *cache.Cache, notifier notify.Notifier, logger logging.Logger, metrics *mutation.Metrics, now time.Time) *Controller {
	return &Controller{
		teamID:      teamID,
		source:      source,
		taskDB:      taskDB,
		tasks:       mutation.NewStore(teamID, func(t models.Task) string { return t.ID }, notifier, logger, metrics),
		cache:       c,
		notifier:    notifier,
		logger:      logger,
		anchor:      now,
		granularity: daterange.Month,
		active:      events.AllToggles(),
	}
}

// Range returns the currently visible date range.
func (c *Controller) Range() daterange.Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return daterange.Resolve(c.anchor, c.granularity)
}

// Granularity returns the active view granularity.
func (c *Controller) Granularity() daterange.Granularity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granularity
}

// Toggles returns the active source categories.
func (c *Controller) Toggles() events.Toggles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Events projects the current state into renderable calendar events. While a
// refresh is in flight it returns skeleton placeholders derived from the
// previous events.
func (c *Controller) Events(now time.Time) []events.CalendarEvent {
	c.mu.Lock()
	sources := c.snapshotSourcesLocked()
	active := c.active
	loading := c.loading
	prior := c.lastEvents
	c.mu.Unlock()

	out := events.Normalize(sources, active, loading, prior, now)
	if !loading {
		c.mu.Lock()
		c.lastEvents = out
		c.mu.Unlock()
	}
	return out
}

// snapshotSourcesLocked overlays the optimistic task store onto the last
// fetched sources so task mutations show up without a refetch.
func (c *Controller) snapshotSourcesLocked() events.Sources {
	s := c.sources
	if c.tasks.Len() > 0 {
		s.Tasks = c.tasks.List()
	}
	return s
}

// Refresh fetches the visible range. On failure the previous data is kept on
// screen and an error notification is always emitted, whether or not a cached
// range was available.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	r := daterange.Resolve(c.anchor, c.granularity)
	active := c.active
	c.loading = true
	c.mu.Unlock()

	key := rangeKey(c.teamID, r, active)
	// The notification fires inside the loader so a failed background
	// revalidation of a stale entry is reported too, not only foreground
	// misses.
	loaded, err := c.cache.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, error) {
		v, ferr := c.source.FetchRange(ctx, c.teamID, r.Start, r.End, active)
		if ferr != nil {
			c.notifyFetchFailure(ctx, r, ferr)
			return nil, ferr
		}
		return v, nil
	})

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.sources = loaded.(events.Sources)
	c.tasks.Replace(c.sources.Tasks)
	c.mu.Unlock()
	return nil
}

func (c *Controller) notifyFetchFailure(ctx context.Context, r daterange.Range, err error) {
	c.logger.WithError(err).WithFields(logging.Fields{
		"team_id": c.teamID,
		"start":   r.Start,
		"end":     r.End,
	}).Error("Calendar fetch failed, keeping previous data")
	c.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelError,
		Message: "Failed to load calendar",
		Detail:  err.Error(),
		TeamID:  c.teamID,
		At:      time.Now(),
	})
}

// Navigate moves the anchor and refetches.
func (c *Controller) Navigate(ctx context.Context, action daterange.NavAction, now time.Time) error {
	c.mu.Lock()
	c.anchor = daterange.Navigate(c.anchor, c.granularity, action, now)
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetGranularity switches the view and refetches.
func (c *Controller) SetGranularity(ctx context.Context, g daterange.Granularity) error {
	c.mu.Lock()
	c.granularity = g
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetToggles changes the visible source categories and refetches. Disabled
// categories are excluded at the query level, not just hidden.
func (c *Controller) SetToggles(ctx context.Context, active events.Toggles) error {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetView applies anchor, granularity and toggles together with a single
// refetch. Read endpoints use it so one request settles the whole view.
func (c *Controller) SetView(ctx context.Context, anchor time.Time, g daterange.Granularity, active events.Toggles) error {
	c.mu.Lock()
	c.anchor = anchor
	c.granularity = g
	c.active = active
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// InvalidateRangeCache drops every cached range for this team. Mutation
// commits call it so the next refetch reflects the server state.
func (c *Controller) InvalidateRangeCache() {
	c.cache.InvalidatePrefix("range:" + c.teamID + ":")
}

// MoveTaskDate optimistically moves a task to a new due date.
func (c *Controller) MoveTaskDate(ctx context.Context, taskID string, due time.Time) error {
	err := c.tasks.Mutate(ctx, mutation.Intent[models.Task]{
		Name:   "move_task_date",
		ItemID: taskID,
		Patch: func(t models.Task) models.Task {
			d := due
			t.DueDate = &d
			return t
		},
		Commit: func(ctx context.Context) error {
			return c.taskDB.UpdateTaskDate(ctx, c.teamID, taskID, due)
		},
		Success: "Task moved",
		Failure: "Failed to move task",
	})
	if err == nil {
		c.InvalidateRangeCache()
	}
	return err
}

// HandleDateDrop interprets a drag of a task onto a day cell.
func (c *Controller) HandleDateDrop(ctx context.Context, taskID, dest string) error {
	action, err := dnd.InterpretDateDrop(taskID, dest)
	if err != nil {
		return err
	}
	if action.Kind == dnd.None {
		return nil
	}
	return c.MoveTaskDate(ctx, action.DraggedID, action.Day)
}

// ToggleTask advances a task through its assignment cycle for userID:
// unassigned tasks get assigned, assigned open tasks get completed, and
// completed tasks reopen keeping their assignee.
func (c *Controller) ToggleTask(ctx context.Context, taskID, userID string) error {
	task, ok := c.tasks.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", mutation.ErrUnknownItem, taskID)
	}

	var nextAssigned *string
	var nextCompleted bool
	var success string
	switch {
	case task.IsCompleted:
		nextAssigned = task.AssignedTo
		nextCompleted = false
		success = "Task reopened"
	case task.AssignedTo == nil:
		u := userID
		nextAssigned = &u
		nextCompleted = false
		success = "Task assigned"
	default:
		nextAssigned = task.AssignedTo
		nextCompleted = true
		success = "Task completed"
	}

	err := c.tasks.Mutate(ctx, mutation.Intent[models.Task]{
		Name:   "toggle_task",
		ItemID: taskID,
		Patch: func(t models.Task) models.Task {
			t.AssignedTo = nextAssigned
			t.IsCompleted = nextCompleted
			return t
		},
		Commit: func(ctx context.Context) error {
			return c.taskDB.UpdateTaskAssignment(ctx, c.teamID, taskID, nextAssigned, nextCompleted)
		},
		Success: success,
		Failure: "Failed to update task",
	})
	if err == nil {
		c.InvalidateRangeCache()
	}
	return err
}

// Task returns the optimistic state of one task.
func (c *Controller) Task(taskID string) (models.Task, bool) {
	return c.tasks.Get(taskID)
}

func rangeKey(teamID string, r daterange.Range, active events.Toggles) string {
	flags := make([]string, 0, 4)
	if active.Tasks {
		flags = append(flags, "t")
	}
	if active.Quotes {
		flags = append(flags, "q")
	}
	if active.Emails {
		flags = append(flags, "e")
	}
	if active.ReceivedEmails {
		flags = append(flags, "r")
	}
	return fmt.Sprintf("range:%s:%s:%s:%s",
		teamID,
		r.Start.Format("2006-01-02"),
		r.End.Format("2006-01-02"),
		strings.Join(flags, ""))
}
