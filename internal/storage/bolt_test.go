package storage

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyshare/service/internal/config"
	"github.com/easyshare/service/internal/logging"
)

func openTestBolt(t *testing.T, opts ...BoltOption) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "objects.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_PutGet(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openTestBolt(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	meta := Metadata{
		ContentType:        String("text/plain"),
		ContentDisposition: String(`attachment; filename="a.txt"`),
	}
	require.NoError(t, s.Put(ctx, "g/a.txt", []byte("hello"), meta))

	obj, err := s.Get(ctx, "g/a.txt")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", obj.ETag)
	assert.Equal(t, at, obj.UploadedAt)
	assert.Equal(t, "text/plain", Value(obj.Metadata.ContentType))
	assert.Nil(t, obj.Metadata.ContentLanguage)
	assert.Nil(t, obj.Metadata.ContentEncoding)
	assert.Nil(t, obj.Metadata.CacheControl)
	assert.Nil(t, obj.Metadata.CacheExpiry)
}

func TestBoltStore_GetMissing(t *testing.T) {
	s := openTestBolt(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_ListPrefix(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()
	for _, k := range []string{"a/1", "a/2", "ab/3", "b/4"} {
		require.NoError(t, s.Put(ctx, k, []byte(k), Metadata{}))
	}

	keys := func(prefix string) []string {
		list, err := s.List(ctx, prefix)
		require.NoError(t, err)
		var out []string
		for _, o := range list {
			out = append(out, o.Key)
		}
		sort.Strings(out)
		return out
	}

	assert.Equal(t, []string{"a/1", "a/2"}, keys("a/"))
	assert.Equal(t, []string{"a/1", "a/2", "ab/3", "b/4"}, keys(""))
	assert.Empty(t, keys("zzz/"))
}

func TestBoltStore_Delete(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), Metadata{}))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrNotFound)
}

func TestBoltStore_OverwriteKeepsLastWrite(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "g/same.txt", []byte("first"), Metadata{}))
	require.NoError(t, s.Put(ctx, "g/same.txt", []byte("second"), Metadata{}))

	obj, err := s.Get(ctx, "g/same.txt")
	require.NoError(t, err)
	body, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "second", string(body))

	list, err := s.List(ctx, "g/")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpen_Bolt(t *testing.T) {
	cfg := &config.Config{StorageDriver: "bolt", BoltPath: filepath.Join(t.TempDir(), "nested", "o.db")}
	s, closeFn, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &BoltStore{}, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, closeFn, err := Open(context.Background(), &config.Config{StorageDriver: "floppy"}, logging.Discard())
	require.Error(t, err)
	assert.NotNil(t, closeFn)
}

func TestStringHelpers(t *testing.T) {
	assert.Nil(t, String(""))
	assert.Equal(t, "x", Value(String("x")))
	assert.Equal(t, "", Value(nil))
	assert.Equal(t, "abc", trimETag(`"abc"`))
	assert.Equal(t, "abc", trimETag("abc"))
}
