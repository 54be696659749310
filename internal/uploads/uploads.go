package uploads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/storage"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// Request describes one file the client wants to upload.
type Request struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// SignedUpload is one signed upload slot: the object key to reference in
// the post, the URL the browser PUTs the bytes to, and the canonical
// media URL stored on the post record.
type SignedUpload struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	MediaURL string `json:"media_url"`
}

type urlSigner interface {
	GeneratePresignedPUT(key, contentType string, expiry time.Duration) (string, error)
	GeneratePresignedGET(key string, expiry time.Duration) (string, error)
	BuildS3URL(key string) string
}

type ledger interface {
	RecordMediaUpload(ctx context.Context, teamID, objectKey string) error
}

// Signer issues presigned upload URLs and records each key in the upload
// ledger so abandoned uploads can be swept later.
type Signer struct {
	s3     urlSigner
	ledger ledger
	expiry time.Duration
	logger logging.Logger
}

// NewSigner creates a Signer. A zero expiry falls back to the storage default.
func NewSigner(s3 urlSigner, l ledger, expiry time.Duration, logger logging.Logger) *Signer {
	if expiry == 0 {
		expiry = storage.DefaultUploadExpiry
	}
	return &Signer{s3: s3, ledger: l, expiry: expiry, logger: logger}
}

// SignBatch validates the batch and returns one signed slot per file. All
// files must share a single media type and fit within the per-post limit.
func (s *Signer) SignBatch(ctx context.Context, teamID string, reqs []Request) ([]SignedUpload, models.MediaType, error) {
	if len(reqs) == 0 {
		return nil, "", fmt.Errorf("no files to sign")
	}
	if len(reqs) > models.MaxMediaPerPost {
		return nil, "", fmt.Errorf("media limit is %d, got %d", models.MaxMediaPerPost, len(reqs))
	}

	mediaType, err := MediaTypeFor(reqs[0].ContentType)
	if err != nil {
		return nil, "", err
	}
	for _, r := range reqs[1:] {
		mt, err := MediaTypeFor(r.ContentType)
		if err != nil {
			return nil, "", err
		}
		if mt != mediaType {
			return nil, "", fmt.Errorf("cannot mix %s and %s in one post", mediaType, mt)
		}
	}

	signed := make([]SignedUpload, 0, len(reqs))
	for _, r := range reqs {
		key := storage.BuildMediaKey(teamID, r.Filename)
		url, err := s.s3.GeneratePresignedPUT(key, r.ContentType, s.expiry)
		if err != nil {
			return nil, "", fmt.Errorf("sign upload for %s: %w", r.Filename, err)
		}
		if err := s.ledger.RecordMediaUpload(ctx, teamID, key); err != nil {
			return nil, "", fmt.Errorf("record upload for %s: %w", r.Filename, err)
		}
		signed = append(signed, SignedUpload{Key: key, URL: url, MediaURL: s.s3.BuildS3URL(key)})
	}

	s.logger.WithFields(logging.Fields{
		"team_id":    teamID,
		"count":      len(signed),
		"media_type": mediaType,
	}).Info("Signed upload batch")

	return signed, mediaType, nil
}

// SignDownload returns a time-limited GET URL for a media object. The key
// must belong to the requesting team; media keys are team-scoped by
// construction.
func (s *Signer) SignDownload(teamID, key string) (string, error) {
	if !strings.HasPrefix(key, "media/"+teamID+"/") {
		return "", fmt.Errorf("object key %q is outside team scope", key)
	}
	url, err := s.s3.GeneratePresignedGET(key, s.expiry)
	if err != nil {
		return "", fmt.Errorf("sign download for %s: %w", key, err)
	}
	return url, nil
}

// MediaTypeFor maps a MIME content type onto the post media type.
func MediaTypeFor(contentType string) (models.MediaType, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaTypeImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaTypeVideo, nil
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

// Put uploads a body to a presigned URL with a raw HTTP PUT. Intended for
// server-side uploads (tests, worker-generated media); browsers call the URL
// directly.
func Put(ctx context.Context, client *http.Client, url, contentType string, body io.Reader) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	return nil
}
