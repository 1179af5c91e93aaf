package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newFakeGCSStore(t *testing.T) *GCSStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object: shares/g/missing","errors":[{"reason":"notFound","message":"No such object: shares/g/missing"}]}}`)
	}))
	t.Cleanup(srv.Close)

	s, err := NewGCSStore(context.Background(), "shares",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGCSStore_GetMissingIsNotFound(t *testing.T) {
	s := newFakeGCSStore(t)

	_, err := s.Get(context.Background(), "g/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGCSStore_DeleteMissingIsNotFound(t *testing.T) {
	s := newFakeGCSStore(t)

	assert.ErrorIs(t, s.Delete(context.Background(), "g/missing"), ErrNotFound)
}
