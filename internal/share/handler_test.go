package share

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyshare/service/internal/logging"
	"github.com/easyshare/service/internal/storage"
)

const testBaseURL = "http://files.test"

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func newTestRouter(t *testing.T, store storage.Store, maxUpload int64) http.Handler {
	t.Helper()
	logger := logging.Discard()
	h := NewHandler(NewService(store, logger), testBaseURL+"/", 24*time.Hour, maxUpload, logger)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("note", "ignored"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, router http.Handler, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, uploadField, files)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_UploadListDownload(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	rec := doUpload(t, router, map[string]string{"a b.txt": "hello", "c.txt": "world"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var up envelope[uploadData]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.True(t, up.Success)
	assert.Equal(t, testBaseURL+"/share/"+up.Data.GroupID, up.Data.ShareURL)
	assert.ElementsMatch(t, []string{"a b.txt", "c.txt"}, up.Data.Files)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/"+up.Data.GroupID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list envelope[shareData]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data.Files, 2)
	first := list.Data.Files[0]
	assert.Equal(t, "a b.txt", first.Name)
	assert.Equal(t, int64(5), first.Size)
	assert.Equal(t, 24*time.Hour, first.ExpiresAt.Sub(first.UploadedAt))
	assert.Equal(t, testBaseURL+"/obj/"+up.Data.GroupID+"/a%20b.txt", first.URL)

	link, err := url.Parse(first.URL)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link.RequestURI(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Empty(t, rec.Header().Get("Content-Language"))
	assert.Empty(t, rec.Header().Get("Expires"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.True(t, strings.HasPrefix(etag, `"`))

	req := httptest.NewRequest(http.MethodGet, link.RequestURI(), nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandler_UploadWithoutFiles(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	rec := doUpload(t, router, map[string]string{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_UploadNotMultipart(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"x":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UploadTooLarge(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 256)

	rec := doUpload(t, router, map[string]string{"big.bin": strings.Repeat("x", 10<<10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_UploadStoreFailure(t *testing.T) {
	store := &flakyStore{Store: newBoltStore(t, time.Now()), failSuffix: "/a.txt"}
	router := newTestRouter(t, store, 1<<20)

	rec := doUpload(t, router, map[string]string{"a.txt": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_ListNotFound(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	for _, path := range []string{
		"/share/not-a-uuid",
		"/share/0b6f7a52-7c1e-4a51-9d55-1f0c4b1f6a11",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHandler_DownloadMissing(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/obj/0b6f7a52-7c1e-4a51-9d55-1f0c4b1f6a11/nope.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteTransferHeaders(t *testing.T) {
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := http.Header{}
	WriteTransferHeaders(h, storage.Metadata{
		ContentType:     storage.String("image/png"),
		ContentLanguage: storage.String("en"),
		CacheControl:    storage.String("no-cache"),
		CacheExpiry:     &expiry,
	})

	assert.Equal(t, "image/png", h.Get("Content-Type"))
	assert.Equal(t, "en", h.Get("Content-Language"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "Fri, 02 Jan 2026 03:04:05 GMT", h.Get("Expires"))
	_, ok := h["Content-Encoding"]
	assert.False(t, ok)
	_, ok = h["Content-Disposition"]
	assert.False(t, ok)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"abc"`, `"abc"`))
	assert.True(t, etagMatches(`W/"abc"`, `"abc"`))
	assert.True(t, etagMatches(`"x", "abc"`, `"abc"`))
	assert.True(t, etagMatches(`*`, `"abc"`))
	assert.False(t, etagMatches(`"abd"`, `"abc"`))
}

func TestRawFileNameKeepsDirectories(t *testing.T) {
	assert.Equal(t, "dir/a.txt", rawFileName(`form-data; name="files"; filename="dir/a.txt"`))
	assert.Empty(t, rawFileName(`form-data; name="note"`))
}

func TestHandler_DownloadDecodesSameWithAndWithoutSlash(t *testing.T) {
	router := newTestRouter(t, newBoltStore(t, time.Now()), 1<<20)

	names := map[string]string{
		"a b.txt":      "plain",
		"dir/a b.txt":  "nested",
		"100%.txt":     "percent",
		"dir/100%.txt": "nested percent",
	}
	rec := doUpload(t, router, names)
	require.Equal(t, http.StatusCreated, rec.Code)
	var up envelope[uploadData]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/share/"+up.Data.GroupID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list envelope[shareData]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data.Files, len(names))

	// Every link is decoded twice: names with a literal '%' miss, the rest resolve.
	want := map[string]int{
		"a b.txt":      http.StatusOK,
		"dir/a b.txt":  http.StatusOK,
		"100%.txt":     http.StatusNotFound,
		"dir/100%.txt": http.StatusNotFound,
	}
	for _, f := range list.Data.Files {
		link, err := url.Parse(f.URL)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, link.RequestURI(), nil))
		assert.Equal(t, want[f.Name], rec.Code, f.Name)
		if rec.Code == http.StatusOK {
			assert.Equal(t, names[f.Name], rec.Body.String(), f.Name)
		}
	}
}
