package api

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// adminKeyMiddleware gates the API behind the X-Admin-Key header when a key
// hash is configured. With no hash the service runs open, which is the normal
// single-operator local setup.
func (s *Server) adminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AdminKeyHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if key == "" {
			respondError(w, http.StatusUnauthorized, "missing_key", "X-Admin-Key header is required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.deps.AdminKeyHash), []byte(key)); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_key", "admin key rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}
