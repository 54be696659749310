package models

import (
	"fmt"
	"time"
)

// PostStatus represents the lifecycle state of a social post
type PostStatus string

const (
	PostStatusDraft          PostStatus = "draft"
	PostStatusScheduled      PostStatus = "scheduled"
	PostStatusPublished      PostStatus = "published"
	PostStatusFailed         PostStatus = "failed"
	PostStatusPartialSuccess PostStatus = "partial_success"
)

// Terminal reports whether the status was set by the publishing pipeline and
// can no longer be changed from the planner.
func (s PostStatus) Terminal() bool {
	switch s {
	case PostStatusPublished, PostStatusFailed, PostStatusPartialSuccess:
		return true
	}
	return false
}

// MediaType applies uniformly to every URL attached to a post
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MaxMediaPerPost caps the media list length on a single post
const MaxMediaPerPost = 10

// SocialPost represents a planner post owned by one team
type SocialPost struct {
	ID          int64      `json:"id" db:"id"`
	TeamID      string     `json:"team_id" db:"team_id"`
	Status      PostStatus `json:"status" db:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	Content     string     `json:"content" db:"content"`
	Providers   []string   `json:"provider" db:"provider"`
	MediaURLs   []string   `json:"media_url" db:"media_url"`
	MediaType   *MediaType `json:"media_type,omitempty" db:"media_type"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate checks the draft/scheduled invariant: scheduled_at is non-null
// iff the post has left the draft state.
func (p *SocialPost) Validate() error {
	if p.Status == PostStatusDraft && p.ScheduledAt != nil {
		return fmt.Errorf("draft post %d must not carry a schedule time", p.ID)
	}
	if p.Status != PostStatusDraft && p.ScheduledAt == nil {
		return fmt.Errorf("post %d with status %s requires a schedule time", p.ID, p.Status)
	}
	if len(p.MediaURLs) > MaxMediaPerPost {
		return fmt.Errorf("post %d exceeds media limit of %d", p.ID, MaxMediaPerPost)
	}
	if len(p.MediaURLs) > 0 && p.MediaType == nil {
		return fmt.Errorf("post %d has media but no media type", p.ID)
	}
	return nil
}

// Task represents a CRM task; only its due date and assignment are mutable here
type Task struct {
	ID          string     `json:"id" db:"id"`
	TeamID      string     `json:"team_id" db:"team_id"`
	Title       string     `json:"title" db:"title"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	AssignedTo  *string    `json:"assigned_to,omitempty" db:"assigned_to"`
	IsCompleted bool       `json:"is_completed" db:"is_completed"`
	ContactName *string    `json:"contact_name,omitempty" db:"contact_name"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Quote is a read-only projection source: the calendar shows its expiry date
type Quote struct {
	ID          string     `json:"id" db:"id"`
	TeamID      string     `json:"team_id" db:"team_id"`
	ContactName *string    `json:"contact_name,omitempty" db:"contact_name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	TotalCents  int64      `json:"total_cents" db:"total_cents"`
}

// EmailDirection distinguishes sent from received messages
type EmailDirection string

const (
	EmailSent     EmailDirection = "sent"
	EmailReceived EmailDirection = "received"
)

// EmailMessage is a read-only projection source for the calendar
type EmailMessage struct {
	ID          string         `json:"id" db:"id"`
	TeamID      string         `json:"team_id" db:"team_id"`
	Direction   EmailDirection `json:"direction" db:"direction"`
	Subject     string         `json:"subject" db:"subject"`
	ContactName *string        `json:"contact_name,omitempty" db:"contact_name"`
	SenderName  *string        `json:"sender_name,omitempty" db:"sender_name"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty" db:"occurred_at"`
}
