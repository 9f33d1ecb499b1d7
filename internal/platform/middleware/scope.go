package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"shopgate/pkg/requestcontext"
)

// ScopeCookie names the cookie carrying the browser-session scope ID.
// The cookie is session-scoped (no Max-Age), so a new browser session gets a
// new scope and never inherits another session's cached authorization.
const ScopeCookie = "shopgate_scope"

// Scope assigns each browser session an opaque scope identifier. All
// authorization state (the holder, persisted admin flags, recently-viewed
// items) is keyed by this scope.
func Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var scope string
		if c, err := r.Cookie(ScopeCookie); err == nil && c.Value != "" {
			scope = c.Value
		} else {
			scope = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ScopeCookie,
				Value:    scope,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := requestcontext.WithScopeID(r.Context(), scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
