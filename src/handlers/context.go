package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/utils"
)

type contextKey string

// userIDContextKey is the key under which the authenticated user's id is
// stored in the request context. Unexported because GetUserIDFromContext
// lives in the same package.
const userIDContextKey contextKey = "userID"

// GetUserIDFromContext retrieves the userID from the context.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// IdentityResolver maps an incoming request to a user id. The production
// deployment plugs in whatever session layer fronts this service; tests and
// local runs use HeaderIdentityResolver.
type IdentityResolver func(r *http.Request) (int64, bool)

// HeaderIdentityResolver reads the user id from the X-User-ID header set by
// the authenticating reverse proxy.
func HeaderIdentityResolver(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

// IdentityMiddleware resolves the requesting user and stores the id in the
// request context. Requests without a resolvable identity are rejected.
func IdentityMiddleware(resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := resolve(r)
			if !ok {
				logger.L.Warn("Request without resolvable identity", "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
				utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
