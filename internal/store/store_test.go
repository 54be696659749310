package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/events"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, logging.NewLogger()), mock
}

func TestFetchRangeSkipsDisabledSources(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)

	mock.ExpectQuery(`SELECT t\.id, t\.team_id, t\.title`).
		WithArgs("team-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "title", "due_date", "assigned_to", "is_completed", "name", "created_at"}).
			AddRow("t1", "team-1", "follow up", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), nil, false, "Acme", time.Now()))

	sources, err := s.FetchRange(context.Background(), "team-1", start, end, events.Toggles{Tasks: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources.Tasks) != 1 || sources.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %+v", sources.Tasks)
	}
	if sources.Quotes != nil || sources.SentEmails != nil || sources.ReceivedEmails != nil {
		t.Fatalf("disabled sources must stay empty")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchedulePostFromDraft(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE social_posts
		SET status = $1, scheduled_at = $2, updated_at = NOW()
		WHERE id = $3 AND team_id = $4 AND status IN ($5, $6)
	`)).
		WithArgs("scheduled", at, int64(7), "team-1", "draft", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SchedulePost(context.Background(), "team-1", 7, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchedulePostRejectsTerminalStatus(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE social_posts`).
		WithArgs("scheduled", at, int64(7), "team-1", "draft", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SchedulePost(context.Background(), "team-1", 7, at); err == nil {
		t.Fatalf("expected error when no row matches")
	}
}

func TestUnschedulePostClearsSchedule(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE social_posts
		SET status = $1, scheduled_at = NULL, updated_at = NOW()
		WHERE id = $2 AND team_id = $3 AND status = $4
	`)).
		WithArgs("draft", int64(7), "team-1", "scheduled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UnschedulePost(context.Background(), "team-1", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreatePostInsertsDraft(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO social_posts`).
		WithArgs("team-1", "draft", "hello world", pq.Array([]string{"linkedin"}), pq.Array([]string{"media/1.png"}), "image").
		WillReturnRows(postRows().AddRow(int64(9), "team-1", "draft", nil, "hello world",
			"{linkedin}", "{media/1.png}", "image", now, now))

	mt := models.MediaTypeImage
	post, err := s.CreatePost(context.Background(), "team-1", "hello world", []string{"linkedin"}, []string{"media/1.png"}, &mt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.ID != 9 || post.Status != models.PostStatusDraft || post.ScheduledAt != nil {
		t.Fatalf("unexpected post %+v", post)
	}
}

func TestCreatePostRejectsOversizedMediaList(t *testing.T) {
	s, _ := newMockStore(t)
	urls := make([]string, models.MaxMediaPerPost+1)
	if _, err := s.CreatePost(context.Background(), "team-1", "x", []string{"x"}, urls, nil); err == nil {
		t.Fatalf("expected media limit error")
	}
}

func TestDeletePostReturnsMediaKeys(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`DELETE FROM social_posts`).
		WithArgs(int64(7), "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"media_url"}).AddRow("{media/a.png,media/b.png}"))

	keys, err := s.DeletePost(context.Background(), "team-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "media/a.png" {
		t.Fatalf("unexpected media keys %v", keys)
	}
}

func TestDeletePostMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`DELETE FROM social_posts`).
		WithArgs(int64(7), "team-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.DeletePost(context.Background(), "team-1", 7); err == nil {
		t.Fatalf("expected error for missing post")
	}
}

func TestUpdateTaskDate(t *testing.T) {
	s, mock := newMockStore(t)
	due := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE tasks
		SET due_date = $1
		WHERE id = $2 AND team_id = $3
	`)).
		WithArgs(due, "t1", "team-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateTaskDate(context.Background(), "team-1", "t1", due); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateTaskAssignment(t *testing.T) {
	s, mock := newMockStore(t)
	user := "user-1"

	mock.ExpectExec(`UPDATE tasks`).
		WithArgs(user, true, "t1", "team-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateTaskAssignment(context.Background(), "team-1", "t1", &user, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListPosts(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	at := time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM social_posts`).
		WithArgs("team-1").
		WillReturnRows(postRows().
			AddRow(int64(1), "team-1", "scheduled", at, "a", "{linkedin}", "{}", nil, now, now).
			AddRow(int64(2), "team-1", "draft", nil, "b", "{}", "{}", nil, now, now))

	posts, err := s.ListPosts(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ScheduledAt == nil || !posts[0].ScheduledAt.Equal(at) {
		t.Fatalf("scheduled_at lost in scan: %+v", posts[0])
	}
	if posts[1].ScheduledAt != nil {
		t.Fatalf("draft must have nil scheduled_at")
	}
}

func TestOrphanedMediaKeys(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT u\.object_key`).
		WithArgs("1800 seconds").
		WillReturnRows(sqlmock.NewRows([]string{"object_key"}).AddRow("media/orphan.png"))

	keys, err := s.OrphanedMediaKeys(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "media/orphan.png" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func postRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "team_id", "status", "scheduled_at", "content", "provider", "media_url", "media_type", "created_at", "updated_at"})
}
