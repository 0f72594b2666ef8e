// Package middleware provides the HTTP middleware shared by the API and
// WebSocket servers: JWT bearer authentication and CORS.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext returns the authenticated user ID set by the auth
// middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// ContextWithUserID is exposed for handlers under test.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GenerateToken signs a JWT whose subject is the user ID.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// NewJWTAuthMiddleware validates a bearer token and injects the user ID into
// the request context. Tokens may also arrive in a "token" query parameter,
// which is how browser WebSocket clients authenticate the upgrade request.
func NewJWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing authentication token", http.StatusUnauthorized)
				return
			}

			var claims jwt.RegisteredClaims
			token, err := jwt.ParseWithClaims(raw, &claims, keyFunc)
			if err != nil || !token.Valid || claims.Subject == "" {
				http.Error(w, "invalid authentication token", http.StatusUnauthorized)
				return
			}

			ctx := ContextWithUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NoopAuth is a test middleware that authenticates every request as userID,
// or rejects everything when allow is false.
func NoopAuth(allow bool, userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, found := strings.CutPrefix(h, "Bearer "); found {
			return after
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
