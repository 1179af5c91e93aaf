package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func okHandler(w http.ResponseWriter, r *http.Request) {
	sub, _ := r.Context().Value(AdminSubjectKey).(string)
	_, _ = w.Write([]byte(sub))
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(secret)(http.HandlerFunc(okHandler))

	token, err := NewAdminToken(secret, "ops", time.Hour)
	require.NoError(t, err)

	rec := serve(h, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer garbage").Code)

	other, err := NewAdminToken("another-secret", "ops", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+other).Code)

	expired, err := NewAdminToken(secret, "ops", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+expired).Code)
}

func TestRequireAdmin_WrongRole(t *testing.T) {
	h := RequireAdmin(secret)(http.HandlerFunc(okHandler))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "someone",
		"role": "viewer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+signed).Code)
}

func TestRequireAdmin_Disabled(t *testing.T) {
	h := RequireAdmin("")(http.HandlerFunc(okHandler))
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer x").Code)

	_, err := NewAdminToken("", "ops", time.Hour)
	assert.ErrorIs(t, err, ErrNoAdminSecret)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.JSONFormatter})

	h := chiMiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	out := buf.String()
	assert.Contains(t, out, "/brew")
	assert.Contains(t, out, "418")
	assert.Contains(t, out, "request_id")
}
