package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/sitetrack/internal/platform/httpx"
	"github.com/odyssey-erp/sitetrack/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It gates
// routes early; services still re-check every action.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current role has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require any", normalizePermissions(perms), grantSet.hasAny)
}

// RequireAll ensures the current role has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require all", normalizePermissions(perms), grantSet.hasAll)
}

func (m Middleware) require(op string, required []string, check func(grantSet, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			// A missing session is reported as 403 so the route list stays hidden.
			principal, err := shared.PrincipalFromContext(r.Context())
			if err != nil || principal.Role == "" {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			granted, err := m.Service.RolePermissions(r.Context(), principal.Role)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error(op, slog.String("role", principal.Role), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !check(newGrantSet(granted), required) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// normalizePermissions lowercases, trims, and dedupes names, keeping order.
func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

type grantSet map[string]struct{}

func newGrantSet(granted []string) grantSet {
	set := make(grantSet, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	return set
}

func (g grantSet) has(perm string) bool {
	_, ok := g[perm]
	return ok
}

func (g grantSet) hasAny(required []string) bool {
	for _, p := range required {
		if g.has(p) {
			return true
		}
	}
	return len(required) == 0
}

func (g grantSet) hasAll(required []string) bool {
	for _, p := range required {
		if !g.has(p) {
			return false
		}
	}
	return true
}
