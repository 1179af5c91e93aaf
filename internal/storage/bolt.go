package storage

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // content validator, not a security primitive
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

var (
	boltDataBucket = []byte("objects")
	boltMetaBucket = []byte("object_meta")
)

// boltRecord is the JSON document kept next to each payload.
type boltRecord struct {
	ContentType        *string    `json:"content_type,omitempty"`
	ContentLanguage    *string    `json:"content_language,omitempty"`
	ContentDisposition *string    `json:"content_disposition,omitempty"`
	ContentEncoding    *string    `json:"content_encoding,omitempty"`
	CacheControl       *string    `json:"cache_control,omitempty"`
	CacheExpiry        *time.Time `json:"cache_expiry,omitempty"`
	ETag               string     `json:"etag"`
	Size               int64      `json:"size"`
	UploadedAt         time.Time  `json:"uploaded_at"`
}

// BoltStore implements Store in a single embedded bbolt file.
// Intended for local development and single-node deployments.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// BoltOption configures a BoltStore.
type BoltOption func(*BoltStore)

// WithClock overrides the clock used to stamp uploads.
func WithClock(now func() time.Time) BoltOption {
	return func(s *BoltStore) { s.now = now }
}

// OpenBoltStore opens (or creates) the database file at path.
func OpenBoltStore(path string, opts ...BoltOption) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{boltDataBucket, boltMetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	s := &BoltStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BoltStore) Put(_ context.Context, key string, data []byte, meta Metadata) error {
	sum := md5.Sum(data) //nolint:gosec
	rec := boltRecord{
		ContentType:        meta.ContentType,
		ContentLanguage:    meta.ContentLanguage,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		CacheControl:       meta.CacheControl,
		CacheExpiry:        meta.CacheExpiry,
		ETag:               hex.EncodeToString(sum[:]),
		Size:               int64(len(data)),
		UploadedAt:         s.now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode metadata %q: %w", key, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(boltDataBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(boltMetaBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Get(_ context.Context, key string) (*Object, error) {
	var (
		data []byte
		rec  boltRecord
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltMetaBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
		// Values are only valid for the life of the transaction.
		data = bytes.Clone(tx.Bucket(boltDataBucket).Get([]byte(key)))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	return &Object{
		Key:  key,
		Body: io.NopCloser(bytes.NewReader(data)),
		Size: rec.Size,
		Metadata: Metadata{
			ContentType:        rec.ContentType,
			ContentLanguage:    rec.ContentLanguage,
			ContentDisposition: rec.ContentDisposition,
			ContentEncoding:    rec.ContentEncoding,
			CacheControl:       rec.CacheControl,
			CacheExpiry:        rec.CacheExpiry,
		},
		ETag:       rec.ETag,
		UploadedAt: rec.UploadedAt,
	}, nil
}

// List seeks to prefix and walks keys in byte order.
func (s *BoltStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	var results []Summary
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(boltMetaBucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode metadata %q: %w", k, err)
			}
			results = append(results, Summary{
				Key:        string(k),
				Size:       rec.Size,
				UploadedAt: rec.UploadedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects %q: %w", prefix, err)
	}
	return results, nil
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(boltMetaBucket)
		if meta.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		if err := meta.Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(boltDataBucket).Delete([]byte(key))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
