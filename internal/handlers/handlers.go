package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/calendar"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/daterange"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/dnd"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/events"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/mutation"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/planner"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/uploads"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/api/common"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/cache"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/middleware"
)

// EventStore is the combined persistence surface the handlers wire into the
// per-team controllers.
type EventStore interface {
	planner.PostStore
	calendar.EventSource
	calendar.TaskStore
}

// UploadSigner signs upload batches and media downloads.
type UploadSigner interface {
	SignBatch(ctx context.Context, teamID string, reqs []uploads.Request) ([]uploads.SignedUpload, models.MediaType, error)
	SignDownload(teamID, key string) (string, error)
}

// App holds the per-team controllers and their shared collaborators. A
// controller pair is created lazily on a team's first request and loaded
// from the database.
type App struct {
	db       EventStore
	media    planner.MediaDeleter
	signer   UploadSigner
	notifier notify.Notifier
	logger   logging.Logger
	metrics  *mutation.Metrics
	cache    *cache.Cache

	mu        sync.Mutex
	planners  map[string]*planner.Controller
	calendars map[string]*calendar.Controller
}

// NewApp creates the handler set. media and signer may be nil when object
// storage is not configured; the upload endpoint then returns 503.
func NewApp(db EventStore, media planner.MediaDeleter, signer UploadSigner, notifier notify.Notifier, c *cache.Cache, logger logging.Logger, metrics *mutation.Metrics) *App {
	return &App{
		db:        db,
		media:     media,
		signer:    signer,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		cache:     c,
		planners:  make(map[string]*planner.Controller),
		calendars: make(map[string]*calendar.Controller),
	}
}

// RegisterRoutes mounts the API under /api/v1, team-scoped.
func (a *App) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.Use(middleware.TeamScopeMiddleware())

	api.GET("/calendar/events", a.GetCalendarEvents)
	api.POST("/calendar/navigate", a.NavigateCalendar)
	api.POST("/calendar/tasks/:id/move", a.MoveTask)
	api.POST("/calendar/tasks/:id/toggle", a.ToggleTask)

	api.GET("/planner/posts", a.ListPlannerPosts)
	api.POST("/planner/posts", a.CreatePost)
	api.POST("/planner/posts/:id/schedule", a.SchedulePost)
	api.POST("/planner/posts/:id/unschedule", a.UnschedulePost)
	api.DELETE("/planner/posts/:id", a.DeletePost)
	api.POST("/planner/drop", a.PlannerDrop)
	api.POST("/planner/schedule/confirm", a.ConfirmSchedule)
	api.GET("/planner/dialog", a.PlannerDialog)

	api.POST("/uploads/sign", a.SignUploads)
	api.GET("/uploads/url", a.GetMediaURL)
}

func teamID(c *gin.Context) string {
	return c.GetString("team_id")
}

func (a *App) plannerFor(ctx context.Context, team string) (*planner.Controller, error) {
	a.mu.Lock()
	if ctrl, ok := a.planners[team]; ok {
		a.mu.Unlock()
		return ctrl, nil
	}
	a.mu.Unlock()

	// Register only after a successful load; a half-initialized controller
	// in the registry would serve an empty board forever.
	ctrl := planner.New(team, a.db, a.media, a.notifier, a.logger, a.metrics)
	if err := ctrl.Load(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.planners[team]; ok {
		return existing, nil
	}
	a.planners[team] = ctrl
	return ctrl, nil
}

func (a *App) calendarFor(team string) *calendar.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctrl, ok := a.calendars[team]
	if !ok {
		ctrl = calendar.New(team, a.db, a.db, a.cache, a.notifier, a.logger, a.metrics, time.Now())
		a.calendars[team] = ctrl
	}
	return ctrl
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mutation.ErrInFlight):
		c.JSON(http.StatusConflict, common.ErrorResponse{Error: err.Error(), Code: "CONFLICT", Service: "almanac"})
	case errors.Is(err, mutation.ErrUnknownItem):
		c.JSON(http.StatusNotFound, common.ErrorResponse{Error: err.Error(), Code: "NOT_FOUND", Service: "almanac"})
	default:
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: err.Error(), Service: "almanac"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: msg, Code: "BAD_REQUEST", Service: "almanac"})
}

func invalidFields(c *gin.Context, msg string, fields map[string]string) {
	c.JSON(http.StatusBadRequest, common.ValidationErrorResponse{Error: msg, Fields: fields})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, common.SuccessResponse{Success: true, Data: data})
}

// GetCalendarEvents returns the normalized events for the requested view.
// Query params: view (day|week|month|agenda), anchor (2006-01-02), and the
// source toggles tasks/quotes/emails/received as 0/1 (default all on).
func (a *App) GetCalendarEvents(c *gin.Context) {
	team := teamID(c)
	ctrl := a.calendarFor(team)

	g := daterange.Month
	if v := c.Query("view"); v != "" {
		parsed, err := daterange.ParseGranularity(v)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		g = parsed
	}

	anchor := time.Now()
	if v := c.Query("anchor"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			badRequest(c, "anchor must be YYYY-MM-DD")
			return
		}
		anchor = parsed
	}

	active := events.AllToggles()
	if v := c.Query("tasks"); v != "" {
		active.Tasks = v == "1"
	}
	if v := c.Query("quotes"); v != "" {
		active.Quotes = v == "1"
	}
	if v := c.Query("emails"); v != "" {
		active.Emails = v == "1"
	}
	if v := c.Query("received"); v != "" {
		active.ReceivedEmails = v == "1"
	}

	err := ctrl.SetView(c.Request.Context(), anchor, g, active)
	evs := ctrl.Events(time.Now())
	r := ctrl.Range()

	// On fetch failure the previous events are kept and returned alongside
	// the error flag; clients keep rendering them.
	status := http.StatusOK
	body := gin.H{
		"success": err == nil,
		"data": gin.H{
			"events": evs,
			"range":  gin.H{"start": r.Start, "end": r.End},
			"view":   g,
		},
	}
	if err != nil {
		status = http.StatusBadGateway
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

// NavigateCalendar moves the visible range (prev/next/today) and refetches.
func (a *App) NavigateCalendar(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "action is required")
		return
	}
	action := daterange.NavAction(req.Action)
	switch action {
	case daterange.NavPrev, daterange.NavNext, daterange.NavToday:
	default:
		badRequest(c, "action must be prev, next or today")
		return
	}

	ctrl := a.calendarFor(teamID(c))
	if err := ctrl.Navigate(c.Request.Context(), action, time.Now()); err != nil {
		fail(c, err)
		return
	}
	r := ctrl.Range()
	ok(c, http.StatusOK, gin.H{"range": gin.H{"start": r.Start, "end": r.End}})
}

// MoveTask moves a task to another day cell.
func (a *App) MoveTask(c *gin.Context) {
	var req struct {
		Dest string `json:"dest" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "dest is required")
		return
	}

	ctrl := a.calendarFor(teamID(c))
	if err := ctrl.HandleDateDrop(c.Request.Context(), c.Param("id"), req.Dest); err != nil {
		fail(c, err)
		return
	}
	task, _ := ctrl.Task(c.Param("id"))
	ok(c, http.StatusOK, task)
}

// ToggleTask advances the assignment/completion cycle for the acting user.
func (a *App) ToggleTask(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id is required")
		return
	}

	ctrl := a.calendarFor(teamID(c))
	if err := ctrl.ToggleTask(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		fail(c, err)
		return
	}
	task, _ := ctrl.Task(c.Param("id"))
	ok(c, http.StatusOK, task)
}

// ListPlannerPosts returns the board: the draft rail plus all posts.
func (a *App) ListPlannerPosts(c *gin.Context) {
	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"posts":       ctrl.Posts(),
		"unscheduled": ctrl.Unscheduled(),
	})
}

// CreatePost creates a new draft.
func (a *App) CreatePost(c *gin.Context) {
	var req struct {
		Content   string   `json:"content" binding:"required"`
		Providers []string `json:"providers" binding:"required"`
		MediaURLs []string `json:"media_urls"`
		MediaType string   `json:"media_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidFields(c, "invalid post", map[string]string{
			"content":   "required",
			"providers": "required",
		})
		return
	}

	var mediaType *models.MediaType
	if req.MediaType != "" {
		mt := models.MediaType(req.MediaType)
		if mt != models.MediaTypeImage && mt != models.MediaTypeVideo {
			invalidFields(c, "invalid post", map[string]string{
				"media_type": "must be image or video",
			})
			return
		}
		mediaType = &mt
	}

	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	post, err := ctrl.Create(c.Request.Context(), req.Content, req.Providers, req.MediaURLs, mediaType)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ok(c, http.StatusCreated, post)
}

func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "bad post id")
		return 0, false
	}
	return id, true
}

// SchedulePost schedules a post at the given instant.
func (a *App) SchedulePost(c *gin.Context) {
	var req struct {
		At time.Time `json:"at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "at (RFC 3339) is required")
		return
	}
	id, idOK := postID(c)
	if !idOK {
		return
	}

	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctrl.Schedule(c.Request.Context(), id, req.At); err != nil {
		fail(c, err)
		return
	}
	post, _ := ctrl.Get(id)
	ok(c, http.StatusOK, post)
}

// UnschedulePost returns a post to the draft rail.
func (a *App) UnschedulePost(c *gin.Context) {
	id, idOK := postID(c)
	if !idOK {
		return
	}
	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctrl.Unschedule(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	post, _ := ctrl.Get(id)
	ok(c, http.StatusOK, post)
}

// DeletePost removes a post and its media.
func (a *App) DeletePost(c *gin.Context) {
	id, idOK := postID(c)
	if !idOK {
		return
	}
	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctrl.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// PlannerDrop reports a completed drag gesture on the board and returns the
// resulting dialog state.
func (a *App) PlannerDrop(c *gin.Context) {
	var req struct {
		DraggedID   string `json:"dragged_id" binding:"required"`
		Source      string `json:"source" binding:"required"`
		Dest        string `json:"dest"`
		SourceIndex int    `json:"source_index"`
		DestIndex   int    `json:"dest_index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "dragged_id and source are required")
		return
	}

	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	err = ctrl.HandleDrop(c.Request.Context(), dnd.Drop{
		DraggedID:   req.DraggedID,
		Source:      req.Source,
		Dest:        req.Dest,
		SourceIndex: req.SourceIndex,
		DestIndex:   req.DestIndex,
	})
	if err != nil {
		fail(c, err)
		return
	}
	state := ctrl.Dialog()
	ok(c, http.StatusOK, gin.H{
		"dialog":      state.Kind.String(),
		"item_id":     state.ItemID,
		"target_date": state.TargetDate,
	})
}

// ConfirmSchedule completes the scheduling dialog with a time of day.
func (a *App) ConfirmSchedule(c *gin.Context) {
	var req struct {
		Time string `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "time (HH:MM) is required")
		return
	}

	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if err := ctrl.ConfirmSchedule(c.Request.Context(), req.Time); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// PlannerDialog returns the current dialog state.
func (a *App) PlannerDialog(c *gin.Context) {
	ctrl, err := a.plannerFor(c.Request.Context(), teamID(c))
	if err != nil {
		fail(c, err)
		return
	}
	state := ctrl.Dialog()
	ok(c, http.StatusOK, gin.H{
		"dialog":      state.Kind.String(),
		"item_id":     state.ItemID,
		"target_date": state.TargetDate,
	})
}

// SignUploads returns presigned PUT slots for a media batch.
func (a *App) SignUploads(c *gin.Context) {
	if a.signer == nil {
		c.JSON(http.StatusServiceUnavailable, common.ErrorResponse{Error: "object storage not configured", Code: "UNAVAILABLE", Service: "almanac"})
		return
	}
	var req struct {
		Files []uploads.Request `json:"files" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidFields(c, "invalid upload batch", map[string]string{
			"files": "required",
		})
		return
	}

	signed, mediaType, err := a.signer.SignBatch(c.Request.Context(), teamID(c), req.Files)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{
		"uploads":    signed,
		"media_type": mediaType,
	})
}

// GetMediaURL returns a presigned download URL for one media object.
func (a *App) GetMediaURL(c *gin.Context) {
	if a.signer == nil {
		c.JSON(http.StatusServiceUnavailable, common.ErrorResponse{Error: "object storage not configured", Code: "UNAVAILABLE", Service: "almanac"})
		return
	}
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
		return
	}
	url, err := a.signer.SignDownload(teamID(c), key)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"url": url})
}
