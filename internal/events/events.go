package events

import (
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
)

// SourceType tags which domain record a calendar event was derived from.
// It uniquely determines which concrete fields of Resource are safe to read.
type SourceType string

const (
	SourceTask          SourceType = "task"
	SourceQuote         SourceType = "quote"
	SourceEmail         SourceType = "email"
	SourceReceivedEmail SourceType = "receivedEmail"
	SourcePost          SourceType = "post"
	SourceSkeleton      SourceType = "skeleton"
)

// CalendarEvent is the uniform shape every source record is projected into.
// It is derived on each rendering pass and never persisted. All events here
// are point-in-time: Start == End.
type CalendarEvent struct {
	ID         string      `json:"id"`
	SourceType SourceType  `json:"source_type"`
	Title      string      `json:"title"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	AllDay     bool        `json:"all_day"`
	Resource   interface{} `json:"-"`
}

// Toggles controls which source categories the normalizer includes.
// Pure view-filter state, never persisted.
type Toggles struct {
	Tasks          bool `json:"tasks"`
	Quotes         bool `json:"quotes"`
	Emails         bool `json:"emails"`
	ReceivedEmails bool `json:"receivedEmails"`
}

// AllToggles enables every source category.
func AllToggles() Toggles {
	return Toggles{Tasks: true, Quotes: true, Emails: true, ReceivedEmails: true}
}

// Sources holds the raw records fetched for the current range.
type Sources struct {
	Tasks          []models.Task
	Quotes         []models.Quote
	SentEmails     []models.EmailMessage
	ReceivedEmails []models.EmailMessage
}

// FallbackSkeletonCount is how many placeholder events are synthesized when a
// load is in flight and no prior data exists.
const FallbackSkeletonCount = 6
