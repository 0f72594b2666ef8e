package middleware

import (
	"net/http"
	"slices"
)

// CorsConfig mirrors the cors section of the service config.
type CorsConfig struct {
	AllowedOrigins []string
}

// NewCORSMiddleware applies the configured origin policy. An entry of "*"
// allows any origin.
func NewCORSMiddleware(cfg CorsConfig) func(http.Handler) http.Handler {
	allowAll := slices.Contains(cfg.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || slices.Contains(cfg.AllowedOrigins, origin)) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
