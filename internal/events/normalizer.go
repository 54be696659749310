package events

import (
	"fmt"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
)

// Normalize projects heterogeneous source records into calendar events.
//
// While loading is true it returns skeleton placeholders instead of real
// data: one per previously known event when prior exists (predictive
// placement, same date bucket), otherwise FallbackSkeletonCount events
// spread across the 7 days of the week containing now.
//
// For real data, each enabled category contributes one event per record with
// a non-null date; records without a date cannot be placed on a calendar and
// are silently excluded. Output order is category order then input order; the
// rendering grid buckets by date regardless.
func Normalize(sources Sources, active Toggles, loading bool, prior []CalendarEvent, now time.Time) []CalendarEvent {
	if loading {
		return skeletons(prior, now)
	}

	out := make([]CalendarEvent, 0, len(sources.Tasks)+len(sources.Quotes)+len(sources.SentEmails)+len(sources.ReceivedEmails))

	if active.Tasks {
		for i := range sources.Tasks {
			t := &sources.Tasks[i]
			if t.DueDate == nil {
				continue
			}
			out = append(out, CalendarEvent{
				ID:         fmt.Sprintf("%s-%s", SourceTask, t.ID),
				SourceType: SourceTask,
				Title:      t.Title,
				Start:      *t.DueDate,
				End:        *t.DueDate,
				AllDay:     true,
				Resource:   t,
			})
		}
	}

	if active.Quotes {
		for i := range sources.Quotes {
			q := &sources.Quotes[i]
			if q.ExpiresAt == nil {
				continue
			}
			out = append(out, CalendarEvent{
				ID:         fmt.Sprintf("%s-%s", SourceQuote, q.ID),
				SourceType: SourceQuote,
				Title:      fmt.Sprintf("expiry for %s", orDefault(q.ContactName, "N/A")),
				Start:      *q.ExpiresAt,
				End:        *q.ExpiresAt,
				AllDay:     true,
				Resource:   q,
			})
		}
	}

	if active.Emails {
		for i := range sources.SentEmails {
			m := &sources.SentEmails[i]
			if m.OccurredAt == nil {
				continue
			}
			out = append(out, CalendarEvent{
				ID:         fmt.Sprintf("%s-%s", SourceEmail, m.ID),
				SourceType: SourceEmail,
				Title:      fmt.Sprintf("email to %s", emailCounterpart(m)),
				Start:      *m.OccurredAt,
				End:        *m.OccurredAt,
				AllDay:     false,
				Resource:   m,
			})
		}
	}

	if active.ReceivedEmails {
		for i := range sources.ReceivedEmails {
			m := &sources.ReceivedEmails[i]
			if m.OccurredAt == nil {
				continue
			}
			out = append(out, CalendarEvent{
				ID:         fmt.Sprintf("%s-%s", SourceReceivedEmail, m.ID),
				SourceType: SourceReceivedEmail,
				Title:      fmt.Sprintf("email from %s", emailCounterpart(m)),
				Start:      *m.OccurredAt,
				End:        *m.OccurredAt,
				AllDay:     false,
				Resource:   m,
			})
		}
	}

	return out
}

// skeletons builds placeholder events so the loading UI keeps its layout.
func skeletons(prior []CalendarEvent, now time.Time) []CalendarEvent {
	if len(prior) > 0 {
		out := make([]CalendarEvent, 0, len(prior))
		for i, ev := range prior {
			if ev.SourceType == SourceSkeleton {
				continue
			}
			out = append(out, CalendarEvent{
				ID:         fmt.Sprintf("%s-%d", SourceSkeleton, i),
				SourceType: SourceSkeleton,
				Start:      ev.Start,
				End:        ev.End,
				AllDay:     ev.AllDay,
			})
		}
		if len(out) > 0 {
			return out
		}
	}

	// No prior data: spread the fallback count across the current week,
	// Monday first.
	monday := startOfISOWeek(now)
	out := make([]CalendarEvent, 0, FallbackSkeletonCount)
	for i := 0; i < FallbackSkeletonCount; i++ {
		day := monday.AddDate(0, 0, i%7)
		out = append(out, CalendarEvent{
			ID:         fmt.Sprintf("%s-%d", SourceSkeleton, i),
			SourceType: SourceSkeleton,
			Start:      day,
			End:        day,
			AllDay:     true,
		})
	}
	return out
}

// emailCounterpart resolves the display name for an email event:
// contact name, then sender name, then "unknown".
func emailCounterpart(m *models.EmailMessage) string {
	if m.ContactName != nil && *m.ContactName != "" {
		return *m.ContactName
	}
	if m.SenderName != nil && *m.SenderName != "" {
		return *m.SenderName
	}
	return "unknown"
}

func orDefault(s *string, def string) string {
	if s != nil && *s != "" {
		return *s
	}
	return def
}

func startOfISOWeek(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}
