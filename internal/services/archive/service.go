package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

var ErrValidation = errors.New("validation error")

// ObjectStore is the subset of *minio.Client used by the archive.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Service writes raw webhook bodies to object storage for later replay and
// reconciliation.
type Service struct {
	store  ObjectStore
	bucket string

	mu    sync.Mutex
	ready bool
}

func NewService(store ObjectStore, bucket string) *Service {
	return &Service{
		store:  store,
		bucket: strings.TrimSpace(bucket),
	}
}

func (s *Service) Store(ctx context.Context, gateway, eventID string, body []byte, receivedAt time.Time) (string, error) {
	if s == nil || s.store == nil {
		return "", nil
	}
	if strings.TrimSpace(gateway) == "" || strings.TrimSpace(eventID) == "" {
		return "", ErrValidation
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := ObjectKey(gateway, eventID, receivedAt)
	_, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"gateway": strings.ToLower(strings.TrimSpace(gateway)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put webhook payload: %w", err)
	}

	return key, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	// A failed check is retried on the next payload.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.store.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, err)
	}
	if !exists {
		if err := s.store.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, err)
		}
	}
	s.ready = true
	return nil
}

func ObjectKey(gateway, eventID string, receivedAt time.Time) string {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	at := receivedAt.UTC()
	return path.Join(
		"webhooks",
		strings.ToLower(strings.TrimSpace(gateway)),
		at.Format("2006"),
		at.Format("01"),
		at.Format("02"),
		strings.TrimSpace(eventID)+".json",
	)
}
