package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyshare/service/internal/audit"
	"github.com/easyshare/service/internal/logging"
	"github.com/easyshare/service/internal/share"
	"github.com/easyshare/service/internal/storage"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// clock is a settable time source shared with the bolt store.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newStore(t *testing.T, c *clock) *storage.BoltStore {
	t.Helper()
	s, err := storage.OpenBoltStore(filepath.Join(t.TempDir(), "objects.db"), storage.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type brokenList struct{ storage.Store }

func (brokenList) List(context.Context, string) ([]storage.Summary, error) {
	return nil, errors.New("connection reset")
}

// stickyDelete refuses to delete keys containing "locked".
type stickyDelete struct {
	storage.Store
	lists atomic.Int32
}

func (s *stickyDelete) List(ctx context.Context, prefix string) ([]storage.Summary, error) {
	s.lists.Add(1)
	return s.Store.List(ctx, prefix)
}

func (s *stickyDelete) Delete(ctx context.Context, key string) error {
	if strings.Contains(key, "locked") {
		return errors.New("permission denied")
	}
	return s.Store.Delete(ctx, key)
}

type recordingAudit struct {
	audit.Nop
	sweeps []audit.SweepRecord
}

func (r *recordingAudit) RecordSweep(_ context.Context, rec audit.SweepRecord) error {
	r.sweeps = append(r.sweeps, rec)
	return nil
}

func TestSweep_CatScenario(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: t0}
	store := newStore(t, c)
	logger := logging.Discard()

	svc := share.NewService(store, logger)
	id, err := svc.UploadBatch(ctx, []share.File{{Name: "cat.png", Data: make([]byte, 500<<10)}})
	require.NoError(t, err)

	sw := New(store, logger)

	report, err := sw.Sweep(ctx, t0.Add(23*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Deleted)

	obj, err := svc.FetchObject(ctx, id.Key("cat.png"))
	require.NoError(t, err)
	_ = obj.Body.Close()

	report, err = sw.Sweep(ctx, t0.Add(25*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, int64(500<<10), report.FreedBytes)
	assert.Empty(t, report.Failures)

	_, err = svc.FetchObject(ctx, id.Key("cat.png"))
	assert.ErrorIs(t, err, share.ErrNotFound)

	entries, err := svc.ListGroup(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweep_BoundaryIsKept(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: t0}
	store := newStore(t, c)
	require.NoError(t, store.Put(ctx, "g/exact", []byte("x"), storage.Metadata{}))

	report, err := New(store, logging.Discard()).Sweep(ctx, t0.Add(24*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)

	report, err = New(store, logging.Discard()).Sweep(ctx, t0.Add(24*time.Hour+time.Nanosecond), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
}

func TestSweep_MaximumRetentionKeepsEverything(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newStore(t, c)
	require.NoError(t, store.Put(ctx, "g/ancient", []byte("x"), storage.Metadata{}))

	report, err := New(store, logging.Discard()).Sweep(ctx, t0, time.Duration(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Zero(t, report.Deleted)
}

func TestSweep_GlobalAcrossGroupsAndMixedAges(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: t0}
	store := newStore(t, c)

	require.NoError(t, store.Put(ctx, "g1/old", []byte("1"), storage.Metadata{}))
	require.NoError(t, store.Put(ctx, "g2/old", []byte("2"), storage.Metadata{}))
	c.now = t0.Add(20 * time.Hour)
	require.NoError(t, store.Put(ctx, "g1/new", []byte("3"), storage.Metadata{}))

	report, err := New(store, logging.Discard(), WithConcurrency(2)).Sweep(ctx, t0.Add(30*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Deleted)

	left, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "g1/new", left[0].Key)
}

func TestSweep_DeleteFailureDoesNotStopRun(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: t0}
	store := &stickyDelete{Store: newStore(t, c)}
	for _, k := range []string{"g/a", "g/locked-1", "g/b", "g/locked-2", "g/c"} {
		require.NoError(t, store.Put(ctx, k, []byte(k), storage.Metadata{}))
	}
	rec := &recordingAudit{}

	report, err := New(store, logging.Discard(), WithAudit(rec), WithConcurrency(3)).Sweep(ctx, t0.Add(48*time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Deleted)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "g/locked-1", report.Failures[0].Key)
	assert.Equal(t, "g/locked-2", report.Failures[1].Key)
	assert.EqualError(t, report.Failures[0].Err, "permission denied")

	require.Len(t, rec.sweeps, 1)
	assert.Equal(t, 2, rec.sweeps[0].Failed)
	assert.Empty(t, rec.sweeps[0].Error)

	b, err := json.Marshal(report.Failures[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"g/locked-1","error":"permission denied"}`, string(b))
}

func TestSweep_ListFailureIsFatal(t *testing.T) {
	rec := &recordingAudit{}
	c := &clock{now: t0}
	sw := New(brokenList{Store: newStore(t, c)}, logging.Discard(), WithAudit(rec))

	report, err := sw.Sweep(context.Background(), t0, time.Hour)
	assert.ErrorIs(t, err, ErrListFailed)
	assert.Contains(t, err.Error(), "connection reset")
	require.NotNil(t, report)
	assert.Zero(t, report.Scanned)

	require.Len(t, rec.sweeps, 1)
	assert.NotEmpty(t, rec.sweeps[0].Error)
}

func TestSweep_CancelledContext(t *testing.T) {
	c := &clock{now: t0}
	store := newStore(t, c)
	require.NoError(t, store.Put(context.Background(), "g/a", []byte("a"), storage.Metadata{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(store, logging.Discard()).Sweep(ctx, t0.Add(48*time.Hour), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Deleted)
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	c := &clock{now: t0}
	store := &stickyDelete{Store: newStore(t, c)}
	sched := NewScheduler(New(store, logging.Discard()), 5*time.Millisecond, time.Hour, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.lists.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestHandler_Run(t *testing.T) {
	c := &clock{now: time.Now().Add(-48 * time.Hour)}
	store := newStore(t, c)
	require.NoError(t, store.Put(context.Background(), "g/a", []byte("a"), storage.Metadata{}))

	h := NewHandler(New(store, logging.Discard()), 24*time.Hour, logging.Discard())
	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Deleted)
}

func TestHandler_RunListFailure(t *testing.T) {
	c := &clock{now: t0}
	h := NewHandler(New(brokenList{Store: newStore(t, c)}, logging.Discard()), time.Hour, logging.Discard())

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
