package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	pkglogger "github.com/pairwave/chat-backend/pkg/logger"
)

// S3Store implements Blob on S3/R2/MinIO compatible storage.
// Ranged reads map directly to ranged GetObject requests, so attachment
// streaming never buffers whole objects in memory.
type S3Store struct {
	client   *s3.Client
	bucket   string
	basePath string // prefix for all objects (e.g. "chat/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Store creates a new S3-compatible blob store
func NewS3Store(cfg S3Config) (*S3Store, error) {
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 blob store initialized")

	return &S3Store{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: cfg.BasePath,
	}, nil
}

// Put implements Blob
func (s *S3Store) Put(ctx context.Context, r io.Reader, originalName, contentType string) (string, int64, error) {
	now := time.Now()
	ref := fmt.Sprintf("%d/%02d/%s%s", now.Year(), now.Month(), uuid.New().String(), sanitizeExt(originalName))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.basePath + ref),
		Body:        r,
		ContentType: aws.String(contentType),
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", 0, fmt.Errorf("s3 upload failed: %w", err)
	}

	size, err := s.Stat(ctx, ref)
	if err != nil {
		return "", 0, fmt.Errorf("s3 upload verify failed: %w", err)
	}
	return ref, size, nil
}

// Open implements Blob
func (s *S3Store) Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.basePath + ref),
	}
	if offset > 0 || length >= 0 {
		if length < 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
		} else {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
		}
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return out.Body, nil
}

// Stat implements Blob
func (s *S3Store) Stat(ctx context.Context, ref string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.basePath + ref),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("s3 head failed: %w", err)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("s3 head: missing content length for %s", ref)
	}
	return *out.ContentLength, nil
}

// Delete implements Blob
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.basePath + ref),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}
