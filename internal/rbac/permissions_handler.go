package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/sitetrack/internal/platform/httpx"
	"github.com/odyssey-erp/sitetrack/internal/shared"
)

// PermissionsHandler exposes the current role's grants so clients can gate
// buttons without duplicating the policy.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProcurementOrdersView))
		r.Get("/", h.listPermissions)
	})
}

type permissionsResponse struct {
	Role    string          `json:"role"`
	Granted map[string]bool `json:"granted"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	role := principal.Role
	granted, err := h.service.RolePermissions(r.Context(), role)
	if err != nil {
		h.logger.Error("list role permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	set := newGrantSet(granted)
	resp := permissionsResponse{Role: role, Granted: make(map[string]bool)}
	for _, scope := range shared.ProcurementScopes() {
		resp.Granted[scope] = set.has(scope)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
