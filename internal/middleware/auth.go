package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"galileo-chat/internal/domain"
	"galileo-chat/internal/observability"
	"galileo-chat/internal/security"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	IdentityKey contextKey = "identity"
)

// Auth requires a Bearer access token that resolves to a user.
func Auth(resolver domain.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := security.BearerToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			identity := resolver.Resolve(r.Context(), token)
			if identity.IsAnonymous() {
				writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = observability.WithUserID(ctx, identity.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func GetIdentity(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithIdentity stores the identity and its user id.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	ctx = context.WithValue(ctx, IdentityKey, identity)
	return WithUserID(ctx, identity.UserID)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
