package share

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/easyshare/service/internal/audit"
	"github.com/easyshare/service/internal/metrics"
	"github.com/easyshare/service/internal/storage"
)

// File is one named payload of an upload batch.
type File struct {
	Name     string
	Data     []byte
	Metadata storage.Metadata
}

// Entry is one member of a group listing.
type Entry struct {
	Key        string
	Name       string
	Size       int64
	UploadedAt time.Time
}

// Service contains the share-group lifecycle logic. It holds no state between
// calls; every operation re-reads the store.
type Service struct {
	store    storage.Store
	observer metrics.Observer
	audit    audit.Recorder
	logger   *log.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithObserver attaches a metrics observer.
func WithObserver(o metrics.Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithAudit attaches an audit recorder.
func WithAudit(r audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

// NewService creates a new share Service.
func NewService(store storage.Store, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		observer: metrics.Nop{},
		audit:    audit.Nop{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadBatch stores files under a fresh group and returns its identifier.
//
// Files are written one after another. The first failed write aborts the batch
// with an *UploadError; earlier files stay stored and later ones are skipped.
// Duplicate names within a batch overwrite each other (last write wins).
func (s *Service) UploadBatch(ctx context.Context, files []File) (GroupID, error) {
	if len(files) == 0 {
		return GroupID{}, ErrEmptyUpload
	}
	start := time.Now()

	id, err := NewGroupID()
	if err != nil {
		return GroupID{}, err
	}

	var total int64
	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := s.store.Put(ctx, id.Key(f.Name), f.Data, f.Metadata); err != nil {
			uerr := &UploadError{Group: id, File: f.Name, Written: written, Err: err}
			s.observer.RecordUpload(time.Since(start), len(written), total, uerr)
			s.logger.Error("upload aborted", "group", id, "file", f.Name, "stored", len(written), "err", err)
			return id, uerr
		}
		written = append(written, f.Name)
		total += int64(len(f.Data))
	}

	s.observer.RecordUpload(time.Since(start), len(files), total, nil)
	s.logger.Info("upload stored", "group", id, "files", len(files), "size", humanize.Bytes(uint64(total)))

	rec := audit.UploadRecord{GroupID: id.String(), Files: len(files), Bytes: total, CreatedAt: s.now()}
	if err := s.audit.RecordUpload(ctx, rec); err != nil {
		s.logger.Warn("audit upload", "group", id, "err", err)
	}
	return id, nil
}

// ListGroup returns every stored object under the group's prefix. A group with no
// members yields an empty slice, whether it never existed or has fully expired.
// Ordering is whatever the store returns.
func (s *Service) ListGroup(ctx context.Context, id GroupID) ([]Entry, error) {
	start := time.Now()
	summaries, err := s.store.List(ctx, id.Prefix())
	s.observer.RecordList(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", id, err)
	}

	entries := make([]Entry, 0, len(summaries))
	for _, o := range summaries {
		entries = append(entries, Entry{
			Key:        o.Key,
			Name:       strings.TrimPrefix(o.Key, id.Prefix()),
			Size:       o.Size,
			UploadedAt: o.UploadedAt,
		})
	}
	return entries, nil
}

// DecodeSegment percent-decodes one key segment arriving from a link.
//
// Links already issued carry percent-encoded segments and the router may or may not
// have decoded them, so one more decode is always applied here. A literal '%' that
// was decoded upstream therefore fails with ErrMalformedKey.
func DecodeSegment(seg string) (string, error) {
	decoded, err := url.PathUnescape(seg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return decoded, nil
}

// ResolveKey decodes a group segment and a file segment and joins them into a store key.
func ResolveKey(groupSeg, fileSeg string) (string, error) {
	if groupSeg == "" || fileSeg == "" {
		return "", fmt.Errorf("%w: empty segment", ErrMalformedKey)
	}
	group, err := DecodeSegment(groupSeg)
	if err != nil {
		return "", err
	}
	name, err := DecodeSegment(fileSeg)
	if err != nil {
		return "", err
	}
	return group + "/" + name, nil
}

// FetchObject opens the object stored at key. The caller must close the body.
func (s *Service) FetchObject(ctx context.Context, key string) (*storage.Object, error) {
	start := time.Now()
	obj, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.observer.RecordFetch(time.Since(start), nil)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.observer.RecordFetch(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return obj, nil
}
