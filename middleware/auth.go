// Package middleware holds HTTP middleware shared by the REST and websocket
// endpoints.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPaths skip bearer auth. /ws authenticates inside the JSON-RPC stream.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
	"/ws":      true,
}

// Auth requires "Authorization: Bearer <token>" on every path except the
// public ones.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
