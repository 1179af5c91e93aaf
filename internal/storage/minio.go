package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store using a MinIO (or any S3-compatible) backend.
// To switch to another S3-compatible provider, change STORAGE_ENDPOINT and credentials;
// no code changes are needed.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a MinIO client, ensures the bucket exists, and returns a
// ready-to-use MinioStore. Objects stay private; downloads are proxied by the service.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *log.Logger) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		logger.Info("storage: created bucket", "bucket", bucket)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads data under key with the given transfer metadata.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	opts := minio.PutObjectOptions{
		ContentType:        Value(meta.ContentType),
		ContentLanguage:    Value(meta.ContentLanguage),
		ContentDisposition: Value(meta.ContentDisposition),
		ContentEncoding:    Value(meta.ContentEncoding),
		CacheControl:       Value(meta.CacheControl),
	}
	if meta.CacheExpiry != nil {
		opts.Expires = *meta.CacheExpiry
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Get opens the object at key. The returned body streams from MinIO.
func (s *MinioStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}

	meta := Metadata{
		ContentType:        String(info.ContentType),
		ContentLanguage:    String(info.Metadata.Get("Content-Language")),
		ContentDisposition: String(info.Metadata.Get("Content-Disposition")),
		ContentEncoding:    String(info.Metadata.Get("Content-Encoding")),
		CacheControl:       String(info.Metadata.Get("Cache-Control")),
	}
	if !info.Expires.IsZero() {
		expires := info.Expires
		meta.CacheExpiry = &expires
	}

	return &Object{
		Key:        key,
		Body:       obj,
		Size:       info.Size,
		Metadata:   meta,
		ETag:       trimETag(info.ETag),
		UploadedAt: info.LastModified,
	}, nil
}

// List walks the bucket recursively under prefix.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	var results []Summary
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, obj.Err)
		}
		results = append(results, Summary{
			Key:        obj.Key,
			Size:       obj.Size,
			UploadedAt: obj.LastModified,
		})
	}
	return results, nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

var _ Store = (*MinioStore)(nil)
