package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type objectStoreStub struct {
	exists      bool
	existsErrs  []error
	existsCalls int
	madeBucket  bool
	putErr      error
	objects     map[string][]byte
	contentType string
}

func (s *objectStoreStub) BucketExists(_ context.Context, _ string) (bool, error) {
	s.existsCalls++
	if len(s.existsErrs) > 0 {
		err := s.existsErrs[0]
		s.existsErrs = s.existsErrs[1:]
		return false, err
	}
	return s.exists, nil
}

func (s *objectStoreStub) MakeBucket(_ context.Context, _ string, _ minio.MakeBucketOptions) error {
	s.madeBucket = true
	s.exists = true
	return nil
}

func (s *objectStoreStub) PutObject(_ context.Context, _ string, object string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if s.putErr != nil {
		return minio.UploadInfo{}, s.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[object] = data
	s.contentType = opts.ContentType
	return minio.UploadInfo{Key: object, Size: int64(len(data))}, nil
}

func TestStoreWritesPayloadUnderDatedKey(t *testing.T) {
	store := &objectStoreStub{}
	svc := NewService(store, "payment-webhooks")

	at := time.Date(2026, time.July, 9, 23, 15, 0, 0, time.UTC)
	key, err := svc.Store(context.Background(), "CamPay", "evt-1", []byte(`{"status":"SUCCESSFUL"}`), at)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if key != "webhooks/campay/2026/07/09/evt-1.json" {
		t.Fatalf("unexpected key: %s", key)
	}
	if string(store.objects[key]) != `{"status":"SUCCESSFUL"}` {
		t.Fatalf("unexpected stored body: %s", store.objects[key])
	}
	if store.contentType != "application/json" {
		t.Fatalf("unexpected content type: %s", store.contentType)
	}
	if !store.madeBucket {
		t.Fatalf("expected missing bucket to be created")
	}

	if _, err := svc.Store(context.Background(), "campay", "evt-2", []byte(`{}`), at); err != nil {
		t.Fatalf("second store: %v", err)
	}
	if store.existsCalls != 1 {
		t.Fatalf("bucket check must run once, ran %d times", store.existsCalls)
	}
}

func TestStoreWithoutObjectStoreIsNoop(t *testing.T) {
	svc := NewService(nil, "bucket")
	key, err := svc.Store(context.Background(), "fapshi", "evt", []byte(`{}`), time.Now())
	if err != nil || key != "" {
		t.Fatalf("expected silent noop, got key=%q err=%v", key, err)
	}
}

func TestStoreValidatesInput(t *testing.T) {
	svc := NewService(&objectStoreStub{exists: true}, "bucket")
	if _, err := svc.Store(context.Background(), "", "evt", nil, time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStoreWrapsPutErrors(t *testing.T) {
	putErr := errors.New("connection reset")
	svc := NewService(&objectStoreStub{exists: true, putErr: putErr}, "bucket")
	if _, err := svc.Store(context.Background(), "fapshi", "evt", []byte(`{}`), time.Now()); !errors.Is(err, putErr) {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestStoreRetriesBucketCheckAfterFailure(t *testing.T) {
	checkErr := errors.New("dial tcp: i/o timeout")
	store := &objectStoreStub{existsErrs: []error{checkErr}}
	svc := NewService(store, "bucket")

	if _, err := svc.Store(context.Background(), "campay", "evt-1", []byte(`{}`), time.Now()); !errors.Is(err, checkErr) {
		t.Fatalf("expected bucket check error, got %v", err)
	}

	key, err := svc.Store(context.Background(), "campay", "evt-2", []byte(`{}`), time.Now())
	if err != nil {
		t.Fatalf("store after transient failure: %v", err)
	}
	if _, ok := store.objects[key]; !ok {
		t.Fatalf("expected payload to be archived after recovery")
	}
	if store.existsCalls != 2 || !store.madeBucket {
		t.Fatalf("expected bucket check to rerun and create the bucket, calls=%d made=%v", store.existsCalls, store.madeBucket)
	}
}
