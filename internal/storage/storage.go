// Package storage defines the object store contract consumed by the share and sweep
// services. Swap implementations by changing the concrete type injected at startup:
// MinIO, AWS S3, Google Cloud Storage, Azure Blob and an embedded bbolt file are provided.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Delete when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Metadata holds the HTTP transfer metadata stored alongside an object.
// A nil field means "not supplied" and must never be rendered as an empty header.
type Metadata struct {
	ContentType        *string
	ContentLanguage    *string
	ContentDisposition *string
	ContentEncoding    *string
	CacheControl       *string
	CacheExpiry        *time.Time
}

// Object is a single stored object opened for reading.
// Body is single-pass; the caller must close it.
type Object struct {
	Key        string
	Body       io.ReadCloser
	Size       int64
	Metadata   Metadata
	ETag       string
	UploadedAt time.Time
}

// Summary is one entry of a listing.
type Summary struct {
	Key        string
	Size       int64
	UploadedAt time.Time
}

// Store is the interface for writing, reading, listing and removing objects.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	// Get opens the object at key. Returns ErrNotFound on a miss.
	Get(ctx context.Context, key string) (*Object, error)
	// List returns every object whose key starts with prefix.
	// An empty prefix lists the whole namespace.
	List(ctx context.Context, prefix string) ([]Summary, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// trimETag strips the quotes some providers wrap around entity tags.
func trimETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}
