package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"medorder/internal/access/middleware"
	"medorder/internal/access/models"
	"medorder/internal/access/navigation"
	"medorder/internal/access/policy"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/platform/httputil"
	request "medorder/pkg/platform/middleware/request"
)

// Handler exposes the caller's role, menu and access decisions so the
// presentation layer renders from the same policy the boundary enforces.
type Handler struct {
	policy *policy.Policy
	menu   *navigation.Menu
	logger *slog.Logger
}

func New(pol *policy.Policy, menu *navigation.Menu, logger *slog.Logger) *Handler {
	return &Handler{policy: pol, menu: menu, logger: logger}
}

// Register mounts the routes. The router must already run the principal
// and enforcement middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/me", h.handleMe)
	r.Get("/api/navigation", h.handleNavigation)
	r.Get("/api/access", h.handleAccess)
}

type meResponse struct {
	PrincipalID     string `json:"principal_id"`
	Role            string `json:"role"`
	RoleDisplayName string `json:"role_display_name"`
}

type navigationResponse struct {
	Role  string            `json:"role"`
	Items []navigation.Item `json:"items"`
}

type accessResponse struct {
	Path          string   `json:"path"`
	Role          string   `json:"role"`
	Restricted    bool     `json:"restricted"`
	RequiredRoles []string `json:"required_roles,omitempty"`
	Permitted     bool     `json:"permitted"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{
		PrincipalID:     principal.ID,
		Role:            principal.Role.String(),
		RoleDisplayName: principal.Role.DisplayName(),
	})
}

func (h *Handler) handleNavigation(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, navigationResponse{
		Role:  principal.Role.String(),
		Items: h.menu.Visible(principal.Role),
	})
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" || !strings.HasPrefix(path, "/") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "path query parameter must be an absolute path"))
		return
	}
	decision := h.policy.Decide(principal.Role, path)
	httputil.WriteJSON(w, http.StatusOK, accessResponse{
		Path:          decision.Path,
		Role:          principal.Role.String(),
		Restricted:    decision.Restricted,
		RequiredRoles: decision.Required.Strings(),
		Permitted:     decision.Permitted,
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (p models.Principal, ok bool) {
	ctx := r.Context()
	p, ok = middleware.PrincipalFromContext(ctx)
	if !ok {
		// Only reachable when the route is mounted without the access middleware.
		h.logger.ErrorContext(ctx, "principal missing from context despite access middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
	}
	return p, ok
}
