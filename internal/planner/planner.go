package planner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/dialog"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/dnd"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/mutation"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// PostStore is the persistence surface the planner needs.
type PostStore interface {
	ListPosts(ctx context.Context, teamID string) ([]models.SocialPost, error)
	CreatePost(ctx context.Context, teamID, content string, providers, mediaURLs []string, mediaType *models.MediaType) (models.SocialPost, error)
	SchedulePost(ctx context.Context, teamID string, id int64, at time.Time) error
	UnschedulePost(ctx context.Context, teamID string, id int64) error
	DeletePost(ctx context.Context, teamID string, id int64) ([]string, error)
	PurgeMediaRecords(ctx context.Context, objectKeys []string) error
}

// MediaDeleter removes stored media objects. Deletion after a post delete is
// best-effort; the cleanup job sweeps anything missed.
type MediaDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Controller owns the scheduling board for one team: the unscheduled draft
// rail, the month grid of scheduled posts, and the dialog state. All post
// mutations run optimistically through the mutation store.
type Controller struct {
	teamID   string
	db       PostStore
	media    MediaDeleter
	posts    *mutation.Store[models.SocialPost]
	dialogs  *dialog.Machine
	notifier notify.Notifier
	logger   logging.Logger
}

// New creates a planner controller. media may be nil when no object storage
// is configured.
func New(teamID string, db PostStore, media MediaDeleter, notifier notify.Notifier, logger logging.Logger, metrics *mutation.Metrics) *Controller {
	return &Controller{
		teamID:   teamID,
		db:       db,
		media:    media,
		posts:    mutation.NewStore(teamID, postKey, notifier, logger, metrics),
		dialogs:  dialog.NewMachine(),
		notifier: notifier,
		logger:   logger,
	}
}

func postKey(p models.SocialPost) string {
	return strconv.FormatInt(p.ID, 10)
}

// Load refreshes the board from the database.
func (c *Controller) Load(ctx context.Context) error {
	posts, err := c.db.ListPosts(ctx, c.teamID)
	if err != nil {
		return fmt.Errorf("load posts: %w", err)
	}
	c.posts.Replace(posts)
	return nil
}

// Posts returns every post on the board.
func (c *Controller) Posts() []models.SocialPost {
	return c.posts.List()
}

// Get returns one post by id.
func (c *Controller) Get(id int64) (models.SocialPost, bool) {
	return c.posts.Get(strconv.FormatInt(id, 10))
}

// Unscheduled returns the draft rail.
func (c *Controller) Unscheduled() []models.SocialPost {
	var drafts []models.SocialPost
	for _, p := range c.posts.List() {
		if p.Status == models.PostStatusDraft {
			drafts = append(drafts, p)
		}
	}
	return drafts
}

// DayBucket returns the posts scheduled on one calendar day.
func (c *Controller) DayBucket(day time.Time) []models.SocialPost {
	y, m, d := day.Date()
	var bucket []models.SocialPost
	for _, p := range c.posts.List() {
		if p.ScheduledAt == nil {
			continue
		}
		py, pm, pd := p.ScheduledAt.Date()
		if py == y && pm == m && pd == d {
			bucket = append(bucket, p)
		}
	}
	return bucket
}

// Dialog returns the current dialog state.
func (c *Controller) Dialog() dialog.State {
	return c.dialogs.Current()
}

// OpenCreate opens the create dialog.
func (c *Controller) OpenCreate() { c.dialogs.OpenCreate() }

// OpenView opens the detail dialog for a post.
func (c *Controller) OpenView(id int64) { c.dialogs.OpenView(strconv.FormatInt(id, 10)) }

// CloseDialog dismisses whatever dialog is open.
func (c *Controller) CloseDialog() { c.dialogs.Close() }

// Create validates and persists a new draft, then places it on the rail.
// Creation is not optimistic: the row id comes from the database.
func (c *Controller) Create(ctx context.Context, content string, providers, mediaURLs []string, mediaType *models.MediaType) (models.SocialPost, error) {
	if content == "" {
		return models.SocialPost{}, fmt.Errorf("content is required")
	}
	if len(providers) == 0 {
		return models.SocialPost{}, fmt.Errorf("select at least one provider")
	}
	if len(mediaURLs) > models.MaxMediaPerPost {
		return models.SocialPost{}, fmt.Errorf("media limit is %d, got %d", models.MaxMediaPerPost, len(mediaURLs))
	}

	post, err := c.db.CreatePost(ctx, c.teamID, content, providers, mediaURLs, mediaType)
	if err != nil {
		c.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Message: "Failed to create post",
			Detail:  err.Error(),
			TeamID:  c.teamID,
			At:      time.Now(),
		})
		return models.SocialPost{}, err
	}

	c.posts.Upsert(post)
	c.dialogs.Close()
	c.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelSuccess,
		Message: "Post created",
		TeamID:  c.teamID,
		ItemID:  postKey(post),
		At:      time.Now(),
	})
	return post, nil
}

// Schedule moves a post onto a day at the given time. The provider list is
// re-validated here: a draft whose providers were cleared since creation must
// not reach the publish queue.
func (c *Controller) Schedule(ctx context.Context, id int64, at time.Time) error {
	key := strconv.FormatInt(id, 10)
	post, ok := c.posts.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", mutation.ErrUnknownItem, key)
	}
	if len(post.Providers) == 0 {
		return fmt.Errorf("select at least one provider before scheduling")
	}
	if post.Status.Terminal() {
		return fmt.Errorf("post %d is already %s", id, post.Status)
	}

	return c.posts.Mutate(ctx, mutation.Intent[models.SocialPost]{
		Name:   "schedule_post",
		ItemID: key,
		Patch: func(p models.SocialPost) models.SocialPost {
			p.Status = models.PostStatusScheduled
			p.ScheduledAt = &at
			return p
		},
		Commit: func(ctx context.Context) error {
			return c.db.SchedulePost(ctx, c.teamID, id, at)
		},
		Success: "Post scheduled",
		Failure: "Failed to schedule post",
	})
}

// Unschedule returns a scheduled post to the draft rail.
func (c *Controller) Unschedule(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)
	post, ok := c.posts.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", mutation.ErrUnknownItem, key)
	}
	if post.Status != models.PostStatusScheduled {
		return fmt.Errorf("post %d is not scheduled", id)
	}

	return c.posts.Mutate(ctx, mutation.Intent[models.SocialPost]{
		Name:   "unschedule_post",
		ItemID: key,
		Patch: func(p models.SocialPost) models.SocialPost {
			p.Status = models.PostStatusDraft
			p.ScheduledAt = nil
			return p
		},
		Commit: func(ctx context.Context) error {
			return c.db.UnschedulePost(ctx, c.teamID, id)
		},
		Success: "Post moved to drafts",
		Failure: "Failed to unschedule post",
	})
}

// Delete removes a post optimistically: it disappears from the board at
// once and reappears only if the database delete fails. Media objects are
// removed best-effort afterwards.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)
	snapshot, ok := c.posts.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", mutation.ErrUnknownItem, key)
	}
	c.posts.Remove(key)
	if state := c.dialogs.Current(); state.ItemID == key {
		c.dialogs.Close()
	}

	mediaKeys, err := c.db.DeletePost(ctx, c.teamID, id)
	if err != nil {
		c.posts.Upsert(snapshot)
		c.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Message: "Failed to delete post",
			Detail:  err.Error(),
			TeamID:  c.teamID,
			ItemID:  key,
			At:      time.Now(),
		})
		return err
	}

	c.cleanupMedia(ctx, mediaKeys)
	c.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelSuccess,
		Message: "Post deleted",
		TeamID:  c.teamID,
		ItemID:  key,
		At:      time.Now(),
	})
	return nil
}

func (c *Controller) cleanupMedia(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	var removed []string
	for _, key := range keys {
		if c.media != nil {
			if err := c.media.Delete(ctx, key); err != nil {
				c.logger.WithError(err).WithFields(logging.Fields{
					"object_key": key,
				}).Warn("Failed to delete media object, cleanup job will retry")
				continue
			}
		}
		removed = append(removed, key)
	}
	if len(removed) > 0 {
		if err := c.db.PurgeMediaRecords(ctx, removed); err != nil {
			c.logger.WithError(err).Warn("Failed to purge media ledger entries")
		}
	}
}

// HandleDrop interprets a drag-and-drop gesture on the board. Dropping a
// draft on a day opens the schedule dialog for that day; dragging a
// scheduled post back to the rail unschedules it; dragging between days
// reschedules keeping the time of day.
func (c *Controller) HandleDrop(ctx context.Context, drop dnd.Drop) error {
	action, err := dnd.Interpret(drop)
	if err != nil {
		return err
	}
	switch action.Kind {
	case dnd.None:
		return nil

	case dnd.OpenSchedule:
		c.dialogs.OpenSchedule(action.DraggedID, action.Day)
		return nil

	case dnd.Unschedule:
		id, err := strconv.ParseInt(action.DraggedID, 10, 64)
		if err != nil {
			return fmt.Errorf("bad post id %q: %w", action.DraggedID, err)
		}
		return c.Unschedule(ctx, id)

	case dnd.MoveDate:
		id, err := strconv.ParseInt(action.DraggedID, 10, 64)
		if err != nil {
			return fmt.Errorf("bad post id %q: %w", action.DraggedID, err)
		}
		post, ok := c.posts.Get(action.DraggedID)
		if !ok {
			return fmt.Errorf("%w: %s", mutation.ErrUnknownItem, action.DraggedID)
		}
		at := action.Day
		if post.ScheduledAt != nil {
			// Keep the time of day when moving between days.
			prev := *post.ScheduledAt
			at = time.Date(action.Day.Year(), action.Day.Month(), action.Day.Day(),
				prev.Hour(), prev.Minute(), prev.Second(), 0, prev.Location())
		}
		return c.Schedule(ctx, id, at)
	}
	return fmt.Errorf("unhandled drop action %v", action.Kind)
}

// ConfirmSchedule completes the scheduling dialog: the pending post is
// scheduled on the dialog's target day at the chosen time of day (HH:MM).
func (c *Controller) ConfirmSchedule(ctx context.Context, timeOfDay string) error {
	state, ok := c.dialogs.TakeScheduling()
	if !ok {
		return fmt.Errorf("no scheduling in progress")
	}
	clock, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		// Restore the dialog so the user can correct the time.
		c.dialogs.OpenSchedule(state.ItemID, state.TargetDate)
		return fmt.Errorf("bad time %q: %w", timeOfDay, err)
	}
	id, err := strconv.ParseInt(state.ItemID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad post id %q: %w", state.ItemID, err)
	}
	day := state.TargetDate
	at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
	return c.Schedule(ctx, id, at)
}
