package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireBearer admits requests carrying "Authorization: Bearer <secret>".
// An empty secret rejects everything, so an unconfigured deployment never
// exposes the endpoints it guards.
func RequireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" || !bearerMatches(r.Header.Get("Authorization"), secret) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"invalid cron credential"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerMatches(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
