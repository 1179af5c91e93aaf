package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsExpiryKey holds the cache expiry in custom metadata; GCS has no Expires attribute.
const gcsExpiryKey = "cache-expiry"

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore creates a client from Application Default Credentials unless
// opts say otherwise.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = Value(meta.ContentType)
	w.ContentLanguage = Value(meta.ContentLanguage)
	w.ContentDisposition = Value(meta.ContentDisposition)
	w.ContentEncoding = Value(meta.ContentEncoding)
	w.CacheControl = Value(meta.CacheControl)
	if meta.CacheExpiry != nil {
		w.Metadata = map[string]string{gcsExpiryKey: meta.CacheExpiry.UTC().Format(time.RFC3339)}
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %q: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (*Object, error) {
	obj := s.client.Bucket(s.bucket).Object(key)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}

	// Pin the generation so the body matches the attributes just read.
	reader, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}

	meta := Metadata{
		ContentType:        String(attrs.ContentType),
		ContentLanguage:    String(attrs.ContentLanguage),
		ContentDisposition: String(attrs.ContentDisposition),
		ContentEncoding:    String(attrs.ContentEncoding),
		CacheControl:       String(attrs.CacheControl),
	}
	if raw, ok := attrs.Metadata[gcsExpiryKey]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			meta.CacheExpiry = &t
		}
	}

	return &Object{
		Key:        key,
		Body:       reader,
		Size:       attrs.Size,
		Metadata:   meta,
		ETag:       attrs.Etag,
		UploadedAt: attrs.Created,
	}, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	var results []Summary
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, err)
		}
		results = append(results, Summary{
			Key:        attrs.Name,
			Size:       attrs.Size,
			UploadedAt: attrs.Created,
		})
	}
	return results, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ Store = (*GCSStore)(nil)
