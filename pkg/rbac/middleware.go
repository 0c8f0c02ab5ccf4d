package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/tenancy"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
)

// HasPermission checks if the current caller has a specific permission
func HasPermission(ctx context.Context, perm models.Permission) bool {
	roleStr := tenancy.GetActorRole(ctx)
	if roleStr == "" {
		return false
	}
	return models.Role(roleStr).HasPermission(perm)
}

// RequirePermission middleware that checks for a specific permission
func RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasPermission(r.Context(), perm) {
				http.Error(w, `{"error":"forbidden","message":"Insufficient permissions"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission middleware that checks for any of the given permissions
func RequireAnyPermission(perms ...models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, perm := range perms {
				if HasPermission(r.Context(), perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, `{"error":"forbidden","message":"Insufficient permissions"}`, http.StatusForbidden)
		})
	}
}

// RequireRole middleware that checks for a specific role
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if models.Role(tenancy.GetActorRole(r.Context())) != role {
				http.Error(w, `{"error":"forbidden","message":"Insufficient role"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly middleware that allows only admin callers
func AdminOnly(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)(next)
}

// CheckPermission is a helper function to check permissions in handlers
func CheckPermission(ctx context.Context, perm models.Permission) error {
	if !HasPermission(ctx, perm) {
		return ErrPermissionDenied
	}
	return nil
}

// GetActorPermissions returns all permissions for the current caller
func GetActorPermissions(ctx context.Context) []models.Permission {
	roleStr := tenancy.GetActorRole(ctx)
	if roleStr == "" {
		return nil
	}
	return models.Role(roleStr).GetPermissions()
}
