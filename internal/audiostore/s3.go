package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Client abstracts the S3 API operations used by S3Store.
// The s3.Client type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config contains audio bucket configuration.
type S3Config struct {
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	UploadPrefix string `yaml:"upload_prefix" mapstructure:"upload_prefix"`
	Region       string `yaml:"region" mapstructure:"region"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	MaxSizeBytes int64  `yaml:"max_size_bytes" mapstructure:"max_size_bytes"`
}

// DefaultS3Config returns the default audio bucket settings.
func DefaultS3Config() S3Config {
	return S3Config{
		UploadPrefix: "audio-uploads",
		Region:       "us-east-1",
		MaxSizeBytes: 10 * 1024 * 1024,
	}
}

// S3Store fetches uploaded audio from S3 or any S3-compatible object store.
// The client must be pre-configured with credentials, region, and endpoint.
type S3Store struct {
	client  S3Client
	bucket  string
	maxSize int64
	logger  *zap.Logger
}

// NewS3Store creates an S3-backed audio store. maxSize of zero disables the
// size ceiling.
func NewS3Store(client S3Client, bucket string, maxSize int64, logger *zap.Logger) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Fetch downloads the audio object at key. The size ceiling is enforced
// before the body is read so oversized uploads never reach memory.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, Metadata{}, fmt.Errorf("fetch %s: %w", key, ErrNotFound)
		}
		return nil, Metadata{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer out.Body.Close()

	meta := Metadata{Key: key}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		meta.LastModified = *out.LastModified
	}

	if s.maxSize > 0 && meta.Size > s.maxSize {
		return nil, meta, fmt.Errorf("fetch %s: %d bytes exceeds limit %d: %w",
			key, meta.Size, s.maxSize, ErrTooLarge)
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, meta, fmt.Errorf("fetch %s: read body: %w", key, err)
	}
	if meta.Size == 0 {
		meta.Size = int64(len(data))
	}

	s.logger.Debug("Audio object fetched",
		zap.String("key", key),
		zap.Int64("size", meta.Size),
		zap.String("content_type", meta.ContentType))

	return data, meta, nil
}

// Exists checks whether the object exists via HeadObject.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ Store = (*S3Store)(nil)
