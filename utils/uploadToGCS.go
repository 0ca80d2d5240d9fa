package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ReportBlobPrefix is the object prefix under which uploaded report PDFs live.
const ReportBlobPrefix = "reports/"

type BlobInfo struct {
	ID      string
	Created time.Time
	Size    int64
}

// GCSBlobStore keeps the original report bytes in a Google Cloud Storage bucket.
// The blob id is the object name.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
}

// NewGCSBlobStore prefers ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// credentialsJSON overrides it when set (e.g. locally).
func NewGCSBlobStore(ctx context.Context, bucket string, credentialsJSON string) (*GCSBlobStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %v", bucket, err)
	}
	return &GCSBlobStore{client: client, bucket: bucket}, nil
}

func (s *GCSBlobStore) Close() error { return s.client.Close() }

func (s *GCSBlobStore) Put(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	objectName := ReportBlobPrefix + uuid.NewString() + ext

	wc := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/pdf"
	wc.Metadata = map[string]string{"original_filename": filename}
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload file to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}
	return objectName, nil
}

func (s *GCSBlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(id).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete is idempotent: a missing object is not an error.
func (s *GCSBlobStore) Delete(ctx context.Context, id string) error {
	err := s.client.Bucket(s.bucket).Object(id).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (s *GCSBlobStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	var out []BlobInfo
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, BlobInfo{ID: attrs.Name, Created: attrs.Created, Size: attrs.Size})
	}
	return out, nil
}
