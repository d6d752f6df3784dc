package mcp

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// KeyFunc returns the API key currently accepted. An empty key leaves the
// endpoint open.
type KeyFunc func() string

// StaticKey returns a KeyFunc for a fixed key.
func StaticKey(key string) KeyFunc {
	return func() string { return key }
}

// AuthMiddleware checks the Authorization header against key, read on every
// request so a rotated key applies without a restart. The header may carry
// a Bearer token or the bare key.
func AuthMiddleware(key KeyFunc, next http.Handler) http.Handler {
	if key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := key()
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
