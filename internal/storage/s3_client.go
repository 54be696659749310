package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
)

// DefaultUploadExpiry bounds how long a signed upload URL stays usable.
const DefaultUploadExpiry = 15 * time.Minute

// S3Config holds the media bucket settings.
type S3Config struct {
	Bucket    string
	Prefix    string // key prefix applied to every operation
	Region    string // defaults to us-east-1
	Endpoint  string // set for MinIO or other S3-compatible stores
	AccessKey string // static credentials; empty means the default chain
	SecretKey string
}

// S3Client signs and manages post media objects. Browsers never see
// credentials; they upload and download through presigned URLs.
type S3Client struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	config        S3Config
	logger        logging.Logger
}

// NewS3Client builds a client for the media bucket.
func NewS3Client(cfg S3Config, logger logging.Logger) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO and most compatible stores need path-style addressing.
			o.UsePathStyle = true
		}
	})

	logger.WithFields(logging.Fields{
		"bucket":   cfg.Bucket,
		"prefix":   cfg.Prefix,
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("S3 client initialized")

	return &S3Client{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		config:        cfg,
		logger:        logger,
	}, nil
}

func (c *S3Client) fullKey(key string) string {
	if c.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(c.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

func normalizeExpiry(expiry time.Duration) time.Duration {
	if expiry <= 0 {
		return DefaultUploadExpiry
	}
	return expiry
}

// GeneratePresignedPUT returns a time-limited upload URL scoped to one
// object. The content type is baked into the signature so the uploader
// cannot swap it.
func (c *S3Client) GeneratePresignedPUT(key, contentType string, expiry time.Duration) (string, error) {
	expiry = normalizeExpiry(expiry)
	fullKey := c.fullKey(key)

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(fullKey),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := c.presignClient.PresignPutObject(context.Background(), input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned PUT URL: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"bucket": c.config.Bucket,
		"key":    fullKey,
		"expiry": expiry,
	}).Info("Generated presigned PUT URL")

	return req.URL, nil
}

// GeneratePresignedGET returns a time-limited download URL for an object.
func (c *S3Client) GeneratePresignedGET(key string, expiry time.Duration) (string, error) {
	req, err := c.presignClient.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(c.fullKey(key)),
	}, s3.WithPresignExpires(normalizeExpiry(expiry)))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned GET URL: %w", err)
	}
	return req.URL, nil
}

// Delete removes a media object.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	fullKey := c.fullKey(key)
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(fullKey),
	}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"bucket": c.config.Bucket,
		"key":    fullKey,
	}).Info("Deleted media object")
	return nil
}

// Exists reports whether an object is present in the bucket.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(c.fullKey(key)),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFoundError(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "NotFound") ||
		strings.Contains(s, "NoSuchKey") ||
		strings.Contains(s, "404")
}

// BuildS3URL renders the canonical s3:// URL stored in the database.
func (c *S3Client) BuildS3URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.config.Bucket, c.fullKey(key))
}

// BuildMediaKey builds the object key for a post attachment. Keys are
// team-scoped so cleanup and access checks stay per-tenant; the random
// component stops uploads from overwriting each other.
func BuildMediaKey(teamID, filename string) string {
	ext := "bin"
	if idx := strings.LastIndex(filename, "."); idx >= 0 && idx < len(filename)-1 {
		ext = filename[idx+1:]
	}
	return fmt.Sprintf("media/%s/%s.%s", teamID, uuid.New().String(), ext)
}

// Bucket returns the configured bucket name.
func (c *S3Client) Bucket() string { return c.config.Bucket }

// Prefix returns the configured key prefix.
func (c *S3Client) Prefix() string { return c.config.Prefix }
