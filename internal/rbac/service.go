package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/sitetrack/internal/platform/db"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Service answers capability checks for roles.
type Service struct {
	source PermissionSource
}

// NewService constructs a Service backed by the provided permission source.
func NewService(source PermissionSource) *Service {
	return &Service{source: source}
}

// Can reports whether role may invoke action. Blank roles or actions are denied.
func (s *Service) Can(ctx context.Context, role, action string) (bool, error) {
	action = strings.TrimSpace(strings.ToLower(action))
	if normalizeRole(role) == "" || action == "" {
		return false, nil
	}
	granted, err := s.RolePermissions(ctx, role)
	if err != nil {
		return false, err
	}
	return newGrantSet(granted).has(action), nil
}

// RolePermissions returns deduplicated permission names for a role.
func (s *Service) RolePermissions(ctx context.Context, role string) ([]string, error) {
	if s == nil || s.source == nil {
		return nil, errors.New("rbac: permission source not configured")
	}
	return s.source.RolePermissions(ctx, role)
}

// Store reads role grants from PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RolePermissions implements PermissionSource.
func (s *Store) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM roles r
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id
WHERE lower(r.name) = $1
ORDER BY p.name`, normalizeRole(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// ListPermissions returns all permissions ordered by name.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a permission ensuring description is stored.
func (s *Store) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, strings.TrimSpace(name), strings.TrimSpace(description)).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// GrantRole attaches permissions to a role, creating the role when missing.
func (s *Store) GrantRole(ctx context.Context, role string, permissions []string) error {
	role = normalizeRole(role)
	if role == "" {
		return errors.New("rbac: role name required")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var roleID int64
		err := tx.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, '')
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, role).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("rbac: upsert role: %w", err)
		}
		for _, perm := range normalizePermissions(permissions) {
			var permID int64
			if err := tx.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1`, perm).Scan(&permID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("rbac: permission %s: %w", perm, ErrNotFound)
				}
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, roleID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}
