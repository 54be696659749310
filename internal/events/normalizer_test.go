package events

import (
	"testing"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestNormalizeExcludesNullDates(t *testing.T) {
	sources := Sources{
		Tasks: []models.Task{
			{ID: "t1", Title: "call back", DueDate: nil},
			{ID: "t2", Title: "send quote", DueDate: timePtr(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))},
		},
	}

	got := Normalize(sources, AllToggles(), false, nil, time.Now())
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ID != "task-t2" {
		t.Fatalf("unexpected event id %q", got[0].ID)
	}
}

func TestNormalizeRespectsToggles(t *testing.T) {
	due := timePtr(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	sources := Sources{
		Tasks:  []models.Task{{ID: "t1", Title: "a", DueDate: due}},
		Quotes: []models.Quote{{ID: "q1", ExpiresAt: due}},
	}

	active := Toggles{Tasks: false, Quotes: true}
	got := Normalize(sources, active, false, nil, time.Now())
	if len(got) != 1 {
		t.Fatalf("expected only quote event, got %d events", len(got))
	}
	if got[0].SourceType != SourceQuote {
		t.Fatalf("expected quote, got %s", got[0].SourceType)
	}
}

func TestNormalizeTitleFormatting(t *testing.T) {
	at := timePtr(time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC))
	sources := Sources{
		Quotes: []models.Quote{
			{ID: "q1", ContactName: strPtr("Acme"), ExpiresAt: at},
			{ID: "q2", ExpiresAt: at},
		},
		SentEmails: []models.EmailMessage{
			{ID: "m1", Direction: models.EmailSent, ContactName: strPtr("Jane"), OccurredAt: at},
			{ID: "m2", Direction: models.EmailSent, SenderName: strPtr("ops@acme.test"), OccurredAt: at},
			{ID: "m3", Direction: models.EmailSent, OccurredAt: at},
		},
		ReceivedEmails: []models.EmailMessage{
			{ID: "m4", Direction: models.EmailReceived, ContactName: strPtr("Bob"), OccurredAt: at},
		},
	}

	got := Normalize(sources, AllToggles(), false, nil, time.Now())
	want := map[string]string{
		"quote-q1":         "expiry for Acme",
		"quote-q2":         "expiry for N/A",
		"email-m1":         "email to Jane",
		"email-m2":         "email to ops@acme.test",
		"email-m3":         "email to unknown",
		"receivedEmail-m4": "email from Bob",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for _, ev := range got {
		if want[ev.ID] != ev.Title {
			t.Errorf("event %s: expected title %q, got %q", ev.ID, want[ev.ID], ev.Title)
		}
	}
}

func TestNormalizeEmailsAreTimed(t *testing.T) {
	at := timePtr(time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC))
	sources := Sources{
		Tasks:      []models.Task{{ID: "t1", Title: "a", DueDate: at}},
		SentEmails: []models.EmailMessage{{ID: "m1", OccurredAt: at}},
	}

	got := Normalize(sources, AllToggles(), false, nil, time.Now())
	for _, ev := range got {
		switch ev.SourceType {
		case SourceTask:
			if !ev.AllDay {
				t.Errorf("task events must be all-day")
			}
		case SourceEmail:
			if ev.AllDay {
				t.Errorf("email events carry a time of day")
			}
		}
		if !ev.Start.Equal(ev.End) {
			t.Errorf("event %s is not point-in-time", ev.ID)
		}
	}
}

func TestNormalizeSkeletonFallback(t *testing.T) {
	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC) // Wednesday
	got := Normalize(Sources{}, AllToggles(), true, nil, now)

	if len(got) != FallbackSkeletonCount {
		t.Fatalf("expected %d skeletons, got %d", FallbackSkeletonCount, len(got))
	}
	weekStart := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC) // Monday
	weekEnd := weekStart.AddDate(0, 0, 7)
	for _, ev := range got {
		if ev.SourceType != SourceSkeleton {
			t.Fatalf("expected skeleton, got %s", ev.SourceType)
		}
		if ev.Start.Before(weekStart) || !ev.Start.Before(weekEnd) {
			t.Errorf("skeleton %s dated %s outside current week", ev.ID, ev.Start)
		}
	}
}

func TestNormalizeSkeletonPredictivePlacement(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	prior := []CalendarEvent{
		{ID: "task-t1", SourceType: SourceTask, Start: day, End: day, AllDay: true},
		{ID: "quote-q1", SourceType: SourceQuote, Start: day.AddDate(0, 0, 2), End: day.AddDate(0, 0, 2), AllDay: true},
	}

	got := Normalize(Sources{}, AllToggles(), true, prior, time.Now())
	if len(got) != len(prior) {
		t.Fatalf("expected one skeleton per prior event, got %d", len(got))
	}
	for i, ev := range got {
		if ev.SourceType != SourceSkeleton {
			t.Fatalf("expected skeleton, got %s", ev.SourceType)
		}
		if !ev.Start.Equal(prior[i].Start) {
			t.Errorf("skeleton %d lost its date bucket", i)
		}
	}
}
