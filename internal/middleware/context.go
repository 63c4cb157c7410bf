package middleware

import (
	"net/http"
	"strings"

	"github.com/chatsync/internal/identity"
)

// UserAuth resolves the acting user from the X-User-ID header and places it
// on the request context for identity.ContextProvider. Requests without a
// user keep flowing; write paths fail later with a sign-in error.
func UserAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
			r = r.WithContext(identity.WithUser(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID returns the user id set by UserAuth, or "".
func GetUserID(r *http.Request) string {
	id, _ := identity.UserFromContext(r.Context())
	return id
}
