package notify

import (
	"context"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// Level classifies a notification for display.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is the user-visible feedback emitted when a mutation settles
// or a fetch fails. Detail carries the collaborator-provided message when one
// exists; Message is the generic fallback shown otherwise.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	TeamID  string    `json:"team_id,omitempty"`
	ItemID  string    `json:"item_id,omitempty"`
	At      time.Time `json:"at"`
	// Origin identifies the publishing instance so subscribers can skip
	// messages they published themselves.
	Origin string `json:"origin,omitempty"`
}

// Notifier delivers notifications to whoever is listening. Implementations
// must be safe for concurrent use and must not block the mutation path.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. It is the fallback
// sink when no realtime transport is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	entry := l.logger.WithFields(logging.Fields{
		"level":   n.Level,
		"team_id": n.TeamID,
		"item_id": n.ItemID,
		"detail":  n.Detail,
	})
	if n.Level == LevelError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Multi fans a notification out to several sinks.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, sink := range m {
		sink.Notify(ctx, n)
	}
}

// Func adapts a function to the Notifier interface; handy in tests.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }
