package rbac

import "context"

// Role represents a high-level permission grouping, e.g. "project_manager".
type Role struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Permission represents an atomic capability such as "procurement-orders/cancel".
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// PermissionSource resolves the permissions granted to a role.
type PermissionSource interface {
	RolePermissions(ctx context.Context, role string) ([]string, error)
}
