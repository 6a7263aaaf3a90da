package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/storage"
)

func TestPutUsesPrefixAndKeepsMetadata(t *testing.T) {
	fake := &fakeBucket{}
	store, err := newWithAPI("bucket-a", "sqlpilot/prod", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/history/instance=api-1/batch.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata:    map[string]string{"entries": "3"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "sqlpilot/prod/history/instance=api-1/batch.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
	if fake.lastOpts.ContentType != "application/vnd.apache.parquet" || fake.lastOpts.Metadata["entries"] != "3" {
		t.Fatalf("opts = %+v", fake.lastOpts)
	}
	if info.Key != "history/instance=api-1/batch.parquet" {
		t.Fatalf("returned key = %q, want store-relative", info.Key)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := newWithAPI("bucket-a", "", &fakeBucket{})
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "..", "  "} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("expected key validation error for %q", key)
		}
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	fake := &fakeBucket{objects: []storage.ObjectInfo{
		{Key: "sqlpilot/history/instance=api-1/date=2026-01-01/hour=00/a.parquet", Size: 10},
		{Key: "sqlpilot/history/instance=api-1/date=2026-01-01/hour=01/b.parquet", Size: 20},
	}}
	store, err := newWithAPI("bucket-a", "/sqlpilot/", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	objects, err := store.List(context.Background(), "history/instance=api-1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "sqlpilot/history/instance=api-1/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "history/instance=api-1/date=2026-01-01/hour=00/a.parquet" {
		t.Fatalf("List() = %+v", objects)
	}
	if _, err := store.List(context.Background(), "../other"); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := newWithAPI("bucket-a", "", &fakeBucket{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "history/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeBucket{}
	store, err := newWithAPI("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("newWithAPI() error = %v", err)
	}

	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should fail while the bucket is missing")
	}
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.bucketExists {
		t.Fatal("expected MakeBucket to be called")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestNewWithAPIValidatesInput(t *testing.T) {
	if _, err := newWithAPI("bucket-a", "", nil); err == nil {
		t.Fatal("expected error for nil api")
	}
	if _, err := newWithAPI(" ", "", &fakeBucket{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{raw: "https://minio.example.com", endpoint: "minio.example.com", secure: true},
		{raw: "http://minio:9000", useSSL: false, endpoint: "minio:9000"},
		{raw: "localhost:9000", useSSL: true, endpoint: "localhost:9000", secure: true},
	}
	for _, tc := range cases {
		endpoint, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if endpoint != tc.endpoint || secure != tc.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, endpoint, secure)
		}
	}
	if _, _, err := parseEndpoint("ftp://minio", false); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

type fakeBucket struct {
	lastBucket     string
	lastKey        string
	lastOpts       storage.PutOptions
	lastListPrefix string
	objects        []storage.ObjectInfo
	bucketExists   bool
	getErr         error
}

func (f *fakeBucket) PutObject(_ context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastBucket = bucket
	f.lastKey = key
	f.lastOpts = opts
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1", LastModified: time.Now().UTC()}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeBucket) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	return f.objects, nil
}

func (f *fakeBucket) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeBucket) MakeBucket(_ context.Context, _, _ string) error {
	f.bucketExists = true
	return nil
}
