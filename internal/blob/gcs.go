package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore keeps objects under a prefix in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket), prefix: prefix, logger: logger}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	w := s.bucket.Object(s.prefix + key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			s.logger.Error("blob.gcs.put_failed", "key", key, "code", gerr.Code, "error", gerr.Message)
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(s.prefix + key).NewReader(ctx)
	if err != nil {
		return nil, s.classify(key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.bucket.Object(s.prefix + key).Delete(ctx); err != nil {
		return s.classify(key, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		key := strings.TrimPrefix(attrs.Name, s.prefix)
		if strings.Contains(key, "/") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) classify(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return notFound(key)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return notFound(key)
	}
	return fmt.Errorf("gcs %s: %w", key, err)
}
