// Package handler accepts audit entries from the services that perform
// order, product and user mutations. The actor is always the authenticated
// principal; request bodies cannot name one.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medorder/internal/access/middleware"
	"medorder/internal/audit"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/platform/httputil"
	request "medorder/pkg/platform/middleware/request"
)

// Recorder is the audit recorder surface the handler drives.
type Recorder interface {
	RecordModification(ctx context.Context, in audit.ModificationInput) (audit.Result, error)
	RecordOrderDeletion(ctx context.Context, in audit.DeletionInput) (audit.Result, error)
	RecordProductDeletion(ctx context.Context, in audit.DeletionInput) (audit.Result, error)
	RecordGenericAudit(ctx context.Context, in audit.GenericInput) (audit.Result, error)
	RecordUpdate(ctx context.Context, in audit.UpdateInput) (audit.Result, error)
}

type Handler struct {
	recorder Recorder
	logger   *slog.Logger
}

func New(recorder Recorder, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Register mounts the routes. The router must already run the principal
// and enforcement middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/audit/modifications", h.handleModification)
	r.Post("/api/audit/deletions/orders", h.handleOrderDeletion)
	r.Post("/api/audit/deletions/products", h.handleProductDeletion)
	r.Post("/api/audit/events", h.handleEvent)
	r.Post("/api/audit/updates", h.handleUpdate)
}

func (h *Handler) handleModification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[modificationRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	res, err := h.recorder.RecordModification(ctx, audit.ModificationInput{
		OrderID:    req.OrderID,
		ModifiedBy: actor,
		Previous:   req.PreviousData,
		Current:    req.CurrentData,
		Reason:     req.ChangeReason,
	})
	h.respond(w, r, res, err)
}

func (h *Handler) handleOrderDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[orderDeletionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	res, err := h.recorder.RecordOrderDeletion(ctx, audit.DeletionInput{
		EntityID:  req.OrderID,
		DeletedBy: actor,
		Data:      req.OrderData,
		Reason:    req.DeletionReason,
	})
	h.respond(w, r, res, err)
}

func (h *Handler) handleProductDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[productDeletionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	res, err := h.recorder.RecordProductDeletion(ctx, audit.DeletionInput{
		EntityID:  req.ProductID,
		DeletedBy: actor,
		Data:      req.ProductData,
		Reason:    req.DeletionReason,
	})
	h.respond(w, r, res, err)
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[eventRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if !h.permitsEntity(w, r, req.EntityType) {
		return
	}
	// IP address and user agent come from the request context.
	res, err := h.recorder.RecordGenericAudit(ctx, audit.GenericInput{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Action:       req.Action,
		ChangedBy:    actor,
		Previous:     req.PreviousData,
		Current:      req.CurrentData,
		ChangeFields: req.ChangeFields,
		Description:  req.ChangeDescription,
	})
	h.respond(w, r, res, err)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if !h.permitsEntity(w, r, req.EntityType) {
		return
	}
	res, err := h.recorder.RecordUpdate(ctx, audit.UpdateInput{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		ChangedBy:   actor,
		Previous:    req.PreviousData,
		Current:     req.CurrentData,
		Description: req.ChangeDescription,
	})
	h.respond(w, r, res, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, res audit.Result, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, audit.ErrWriteFailed):
		// Already logged by the recorder with the entry details.
		httputil.WriteErrorCode(w, http.StatusServiceUnavailable, "audit_write_failed", "Audit entry could not be stored")
	case err != nil:
		h.logger.InfoContext(ctx, "audit entry rejected",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
	case res.Status == audit.StatusNoChange:
		httputil.WriteJSON(w, http.StatusOK, toResponse(res))
	default:
		httputil.WriteJSON(w, http.StatusCreated, toResponse(res))
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	p, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "principal missing from context despite access middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return p.ID, true
}

// adminEntities may only be audited by administrators.
var adminEntities = map[audit.EntityType]bool{
	audit.EntityUser:   true,
	audit.EntityAgency: true,
}

func (h *Handler) permitsEntity(w http.ResponseWriter, r *http.Request, t audit.EntityType) bool {
	if !adminEntities[t] {
		return true
	}
	ctx := r.Context()
	p, _ := middleware.PrincipalFromContext(ctx)
	if p.Role.IsAdmin() {
		return true
	}
	h.logger.WarnContext(ctx, "audit entry denied for entity type",
		"principal_id", p.ID,
		"role", p.Role,
		"entity_type", t,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteErrorCode(w, http.StatusForbidden, "access_denied", "Your role does not permit auditing this entity type")
	return false
}
