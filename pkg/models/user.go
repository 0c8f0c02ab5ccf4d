package models

// Role represents a principal's role in the marketplace
type Role string

const (
	RoleAdmin     Role = "admin"     // Full system access
	RoleClient    Role = "client"    // Submits and cancels own jobs
	RoleEvaluator Role = "evaluator" // Claims jobs and submits results
)

// Permission represents a specific permission
type Permission string

const (
	PermJobSubmit       Permission = "job:submit"
	PermJobRead         Permission = "job:read"
	PermJobClaim        Permission = "job:claim"
	PermJobResult       Permission = "job:result"
	PermJobRelease      Permission = "job:release"
	PermJobCancel       Permission = "job:cancel"
	PermJobFail         Permission = "job:fail"
	PermJobReprioritize Permission = "job:reprioritize"

	PermMetricsRead Permission = "metrics:read"
	PermTokenIssue  Permission = "token:issue"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermJobSubmit: true, PermJobRead: true, PermJobClaim: true,
		PermJobResult: true, PermJobRelease: true, PermJobCancel: true,
		PermJobFail: true, PermJobReprioritize: true,
		PermMetricsRead: true, PermTokenIssue: true,
	},
	RoleClient: {
		PermJobSubmit: true, PermJobRead: true, PermJobCancel: true,
		PermJobReprioritize: true,
	},
	RoleEvaluator: {
		PermJobRead: true, PermJobClaim: true, PermJobResult: true,
		PermJobRelease: true, PermJobFail: true,
	},
}

// HasPermission checks whether the role grants a permission
func (r Role) HasPermission(perm Permission) bool {
	perms, ok := rolePermissions[r]
	if !ok {
		return false
	}
	return perms[perm]
}

// IsAdmin reports whether the role carries administrator authority
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// GetPermissions returns all permissions granted to the role
func (r Role) GetPermissions() []Permission {
	perms, ok := rolePermissions[r]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	return out
}

// ValidRole reports whether the role name is one the system knows
func ValidRole(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}
