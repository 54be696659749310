package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/events"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// Store wraps the Postgres connection for the planner and calendar data.
// Every query carries a team_id predicate; the hosted platform additionally
// enforces row-level security at the database boundary.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// FetchRange loads every enabled source category inside the window. The read
// is idempotent; disabled categories stay empty rather than being fetched and
// discarded.
func (s *Store) FetchRange(ctx context.Context, teamID string, start, end time.Time, active events.Toggles) (events.Sources, error) {
	var sources events.Sources

	if active.Tasks {
		tasks, err := s.tasksInRange(ctx, teamID, start, end)
		if err != nil {
			return events.Sources{}, fmt.Errorf("fetch tasks: %w", err)
		}
		sources.Tasks = tasks
	}
	if active.Quotes {
		quotes, err := s.quotesInRange(ctx, teamID, start, end)
		if err != nil {
			return events.Sources{}, fmt.Errorf("fetch quotes: %w", err)
		}
		sources.Quotes = quotes
	}
	if active.Emails {
		emails, err := s.emailsInRange(ctx, teamID, models.EmailSent, start, end)
		if err != nil {
			return events.Sources{}, fmt.Errorf("fetch sent emails: %w", err)
		}
		sources.SentEmails = emails
	}
	if active.ReceivedEmails {
		emails, err := s.emailsInRange(ctx, teamID, models.EmailReceived, start, end)
		if err != nil {
			return events.Sources{}, fmt.Errorf("fetch received emails: %w", err)
		}
		sources.ReceivedEmails = emails
	}

	return sources, nil
}

func (s *Store) quotesInRange(ctx context.Context, teamID string, start, end time.Time) ([]models.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.team_id, c.name, q.expires_at, q.total_cents
		FROM quotes q
		LEFT JOIN contacts c ON c.id = q.contact_id
		WHERE q.team_id = $1 AND q.expires_at BETWEEN $2 AND $3
		ORDER BY q.expires_at
	`, teamID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []models.Quote
	for rows.Next() {
		var q models.Quote
		var contactName sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.TeamID, &contactName, &expiresAt, &q.TotalCents); err != nil {
			return nil, err
		}
		if contactName.Valid {
			q.ContactName = &contactName.String
		}
		if expiresAt.Valid {
			q.ExpiresAt = &expiresAt.Time
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (s *Store) emailsInRange(ctx context.Context, teamID string, direction models.EmailDirection, start, end time.Time) ([]models.EmailMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.team_id, e.direction, e.subject, c.name, e.sender_name, e.occurred_at
		FROM emails e
		LEFT JOIN contacts c ON c.id = e.contact_id
		WHERE e.team_id = $1 AND e.direction = $2 AND e.occurred_at BETWEEN $3 AND $4
		ORDER BY e.occurred_at
	`, teamID, string(direction), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []models.EmailMessage
	for rows.Next() {
		var m models.EmailMessage
		var contactName, senderName sql.NullString
		var occurredAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.TeamID, &m.Direction, &m.Subject, &contactName, &senderName, &occurredAt); err != nil {
			return nil, err
		}
		if contactName.Valid {
			m.ContactName = &contactName.String
		}
		if senderName.Valid {
			m.SenderName = &senderName.String
		}
		if occurredAt.Valid {
			m.OccurredAt = &occurredAt.Time
		}
		emails = append(emails, m)
	}
	return emails, rows.Err()
}
