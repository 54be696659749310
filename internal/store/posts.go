package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
)

const postColumns = `id, team_id, status, scheduled_at, content, provider, media_url, media_type, created_at, updated_at`

// ListPosts returns every post for the team, newest first. The planner
// decides which terminal posts are still shown for the visible window.
func (s *Store) ListPosts(ctx context.Context, teamID string) ([]models.SocialPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM social_posts
		WHERE team_id = $1
		ORDER BY created_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []models.SocialPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost loads a single post.
func (s *Store) GetPost(ctx context.Context, teamID string, id int64) (models.SocialPost, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM social_posts
		WHERE id = $1 AND team_id = $2
	`, id, teamID)
	return scanPost(row)
}

// CreatePost inserts a new draft. Drafts never carry a schedule time.
func (s *Store) CreatePost(ctx context.Context, teamID, content string, providers, mediaURLs []string, mediaType *models.MediaType) (models.SocialPost, error) {
	if len(mediaURLs) > models.MaxMediaPerPost {
		return models.SocialPost{}, fmt.Errorf("media limit is %d, got %d", models.MaxMediaPerPost, len(mediaURLs))
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO social_posts (team_id, status, content, provider, media_url, media_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+postColumns+`
	`, teamID, string(models.PostStatusDraft), content, pq.Array(providers), pq.Array(mediaURLs), mediaTypeArg(mediaType))
	return scanPost(row)
}

// SchedulePost sets the schedule time and moves the post out of draft. The
// predicate keeps terminal posts untouched: published and failed posts are
// only written by the publishing pipeline.
func (s *Store) SchedulePost(ctx context.Context, teamID string, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE social_posts
		SET status = $1, scheduled_at = $2, updated_at = NOW()
		WHERE id = $3 AND team_id = $4 AND status IN ($5, $6)
	`, string(models.PostStatusScheduled), at, id, teamID,
		string(models.PostStatusDraft), string(models.PostStatusScheduled))
	if err != nil {
		return fmt.Errorf("schedule post: %w", err)
	}
	return requireOneRow(result, "post", fmt.Sprint(id))
}

// UnschedulePost clears the schedule time and returns the post to draft.
func (s *Store) UnschedulePost(ctx context.Context, teamID string, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE social_posts
		SET status = $1, scheduled_at = NULL, updated_at = NOW()
		WHERE id = $2 AND team_id = $3 AND status = $4
	`, string(models.PostStatusDraft), id, teamID, string(models.PostStatusScheduled))
	if err != nil {
		return fmt.Errorf("unschedule post: %w", err)
	}
	return requireOneRow(result, "post", fmt.Sprint(id))
}

// DeletePost removes the post and returns its media keys so the caller can
// delete the stored objects.
func (s *Store) DeletePost(ctx context.Context, teamID string, id int64) ([]string, error) {
	var mediaURLs pq.StringArray
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM social_posts
		WHERE id = $1 AND team_id = $2
		RETURNING media_url
	`, id, teamID).Scan(&mediaURLs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	return []string(mediaURLs), nil
}

// OrphanedMediaKeys lists media objects recorded in the upload ledger whose
// post no longer exists, older than maxAge. The cleanup job deletes them.
func (s *Store) OrphanedMediaKeys(ctx context.Context, maxAge time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.object_key
		FROM media_uploads u
		LEFT JOIN social_posts p ON u.object_key = ANY(p.media_url)
		WHERE p.id IS NULL AND u.created_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("find orphaned media: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RecordMediaUpload writes the upload ledger entry backing orphan detection.
func (s *Store) RecordMediaUpload(ctx context.Context, teamID, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_uploads (team_id, object_key)
		VALUES ($1, $2)
		ON CONFLICT (object_key) DO NOTHING
	`, teamID, objectKey)
	if err != nil {
		return fmt.Errorf("record media upload: %w", err)
	}
	return nil
}

// PurgeMediaRecords drops ledger entries once their objects are deleted.
func (s *Store) PurgeMediaRecords(ctx context.Context, objectKeys []string) error {
	if len(objectKeys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM media_uploads WHERE object_key = ANY($1)
	`, pq.Array(objectKeys))
	if err != nil {
		return fmt.Errorf("purge media records: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.SocialPost, error) {
	var p models.SocialPost
	var scheduledAt sql.NullTime
	var mediaType sql.NullString
	var providers, mediaURLs pq.StringArray

	err := row.Scan(&p.ID, &p.TeamID, &p.Status, &scheduledAt, &p.Content, &providers, &mediaURLs, &mediaType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.SocialPost{}, err
	}
	if scheduledAt.Valid {
		p.ScheduledAt = &scheduledAt.Time
	}
	if mediaType.Valid {
		mt := models.MediaType(mediaType.String)
		p.MediaType = &mt
	}
	p.Providers = []string(providers)
	p.MediaURLs = []string(mediaURLs)
	return p, nil
}

func mediaTypeArg(mt *models.MediaType) interface{} {
	if mt == nil {
		return nil
	}
	return string(*mt)
}
