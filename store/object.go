package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/centsible/services-receipts/logging"
)

// User-facing storage failure categories. Anything else passes through
// with its raw message.
const (
	MsgBucketNotFound   = "storage bucket not found or misconfigured"
	MsgPermissionDenied = "storage permission denied"
)

type ImageStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// PresignGet returns a publicly resolvable URL for the object,
	// valid for ttl. The extraction pipeline fetches the image
	// through it.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type S3ImageStorage struct {
	client     *s3.Client
	bucketName string

	logger logging.Logger
}

func NewS3ImageStorage(client *s3.Client, bucketName string, l logging.Logger) *S3ImageStorage {
	return &S3ImageStorage{
		client:     client,
		bucketName: bucketName,
		logger:     l,
	}
}

func (s *S3ImageStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("failed to put object", "key", key, "error", err)
		return err
	}

	s.logger.Info("stored receipt image", "key", key, "size", size)
	return nil
}

func (s *S3ImageStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)

	presigned, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", err
	}

	return presigned.URL, nil
}

// TranslateStorageError maps an object-store failure onto one of the
// canned user-facing messages, falling back to the raw message.
func TranslateStorageError(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return MsgBucketNotFound
		case "AccessDenied", "AllAccessDisabled", "InvalidAccessKeyId":
			return MsgPermissionDenied
		}
	}
	return err.Error()
}

// BuildObjectKey produces a collision-resistant key for an uploaded
// image: unix-millis timestamp, random suffix, then the sanitized
// original filename.
func BuildObjectKey(originalName string) string {
	suffix := make([]byte, 4)
	rand.Read(suffix)

	return fmt.Sprintf(
		"receipts/%d-%s-%s",
		time.Now().UTC().UnixMilli(),
		hex.EncodeToString(suffix),
		sanitizeFilename(originalName),
	)
}

// sanitizeFilename strips non-ASCII runes, replaces anything outside
// [a-zA-Z0-9._-] with underscores and caps the length. An empty result
// falls back to "receipt".
func sanitizeFilename(name string) string {
	const maxLen = 64

	var b strings.Builder
	for _, r := range name {
		if r > unicode.MaxASCII {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}
	if out == "" {
		return "receipt"
	}
	return out
}
