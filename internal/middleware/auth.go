package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/easyshare/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// AdminSubjectKey is the context key for the authenticated operator's subject claim.
const AdminSubjectKey contextKey = "adminSubject"

// adminRole is the only role accepted on admin routes.
const adminRole = "admin"

// ErrNoAdminSecret is returned when tokens are requested without a signing secret.
var ErrNoAdminSecret = errors.New("admin secret is not configured")

// NewAdminToken signs an HS256 token granting admin access for ttl.
func NewAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoAdminSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// RequireAdmin returns middleware that validates a Bearer JWT carrying the admin
// role. With an empty secret every request is refused.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				response.Forbidden(w, "admin endpoints are disabled")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}
			if role, _ := claims["role"].(string); role != adminRole {
				response.Forbidden(w, "admin role required")
				return
			}

			subject, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), AdminSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
