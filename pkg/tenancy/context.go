package tenancy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

// Context keys for caller identity
type contextKey string

const (
	ActorIDKey   contextKey = "actor_id"
	ActorRoleKey contextKey = "actor_role"
)

var ErrNoActorInContext = errors.New("no actor ID in context")

// GetActorID extracts the caller identity from context
func GetActorID(ctx context.Context) (string, error) {
	actorID, ok := ctx.Value(ActorIDKey).(string)
	if !ok || actorID == "" {
		return "", ErrNoActorInContext
	}
	return actorID, nil
}

// GetActorRole extracts the caller role from context
func GetActorRole(ctx context.Context) string {
	role, _ := ctx.Value(ActorRoleKey).(string)
	return role
}

// WithActor adds caller identity and role to context
func WithActor(ctx context.Context, actorID, role string) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, actorID)
	return context.WithValue(ctx, ActorRoleKey, role)
}

// TokenValidator checks a bearer token and resolves the identity and role it
// was issued for.
type TokenValidator interface {
	ValidateBearer(bearer string) (string, models.Role, error)
}

// ActorMiddleware extracts caller identity from the request and adds it to
// the context. A bearer token (ppsub_<actor>_<key>) is validated against the
// token manager and carries its own role; the X-Actor-ID / X-Actor-Role
// headers remain available for trusted deployments without token issuance.
func ActorMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authz := r.Header.Get("Authorization"); authz != "" && tokens != nil {
				bearer := strings.TrimPrefix(authz, "Bearer ")
				actorID, role, err := tokens.ValidateBearer(bearer)
				if err != nil {
					http.Error(w, `{"error":"invalid_token","message":"Bearer token rejected"}`, http.StatusUnauthorized)
					return
				}
				// Role headers are ignored for token-authenticated callers
				r = r.WithContext(WithActor(r.Context(), actorID, string(role)))
				next.ServeHTTP(w, r)
				return
			}

			if actorID := r.Header.Get("X-Actor-ID"); actorID != "" {
				r = r.WithContext(WithActor(r.Context(), actorID, r.Header.Get("X-Actor-Role")))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor middleware ensures the request carries a caller identity
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := GetActorID(r.Context())
		if err != nil {
			http.Error(w, `{"error":"actor_required","message":"No actor ID provided"}`, http.StatusUnauthorized)
			return
		}
		if !isValidActorID(actorID) {
			http.Error(w, `{"error":"invalid_actor","message":"Invalid actor ID format"}`, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isValidActorID validates actor ID format
func isValidActorID(actorID string) bool {
	if len(actorID) == 0 || len(actorID) > 64 {
		return false
	}
	// Allow alphanumeric, hyphens, underscores, and one namespace colon
	colons := 0
	for _, ch := range actorID {
		if ch == ':' {
			colons++
			if colons > 1 {
				return false
			}
			continue
		}
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_') {
			return false
		}
	}
	return true
}
