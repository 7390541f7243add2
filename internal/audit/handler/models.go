package handler

import (
	"strings"

	"medorder/internal/audit"
	dErrors "medorder/pkg/domain-errors"
	strutil "medorder/pkg/platform/strings"
)

// Snapshots decode into ordered records so the stored JSON keeps the
// caller's key order.

type modificationRequest struct {
	OrderID      string         `json:"order_id"`
	PreviousData audit.Snapshot `json:"previous_data"`
	CurrentData  audit.Snapshot `json:"current_data"`
	ChangeReason string         `json:"change_reason"`
}

func (r *modificationRequest) Validate() error {
	r.OrderID = strings.TrimSpace(r.OrderID)
	if r.OrderID == "" {
		return dErrors.New(dErrors.CodeValidation, "order_id is required")
	}
	if r.CurrentData.Len() == 0 {
		return dErrors.New(dErrors.CodeValidation, "current_data is required")
	}
	return nil
}

type orderDeletionRequest struct {
	OrderID        string         `json:"order_id"`
	OrderData      audit.Snapshot `json:"order_data"`
	DeletionReason string         `json:"deletion_reason"`
}

func (r *orderDeletionRequest) Validate() error {
	r.OrderID = strings.TrimSpace(r.OrderID)
	if r.OrderID == "" {
		return dErrors.New(dErrors.CodeValidation, "order_id is required")
	}
	if r.OrderData.Len() == 0 {
		return dErrors.New(dErrors.CodeValidation, "order_data is required")
	}
	return nil
}

type productDeletionRequest struct {
	ProductID      string         `json:"product_id"`
	ProductData    audit.Snapshot `json:"product_data"`
	DeletionReason string         `json:"deletion_reason"`
}

func (r *productDeletionRequest) Validate() error {
	r.ProductID = strings.TrimSpace(r.ProductID)
	if r.ProductID == "" {
		return dErrors.New(dErrors.CodeValidation, "product_id is required")
	}
	if r.ProductData.Len() == 0 {
		return dErrors.New(dErrors.CodeValidation, "product_data is required")
	}
	return nil
}

type eventRequest struct {
	EntityType        audit.EntityType `json:"entity_type"`
	EntityID          string           `json:"entity_id"`
	Action            audit.Action     `json:"action"`
	PreviousData      *audit.Snapshot  `json:"previous_data"`
	CurrentData       audit.Snapshot   `json:"current_data"`
	ChangeFields      []string         `json:"change_fields"`
	ChangeDescription string           `json:"change_description"`
}

func (r *eventRequest) Validate() error {
	r.EntityID = strings.TrimSpace(r.EntityID)
	if r.EntityID == "" {
		return dErrors.New(dErrors.CodeValidation, "entity_id is required")
	}
	r.EntityType = audit.EntityType(strings.ToLower(strings.TrimSpace(string(r.EntityType))))
	r.Action = audit.Action(strings.ToLower(strings.TrimSpace(string(r.Action))))
	r.ChangeFields = strutil.DedupeAndTrim(r.ChangeFields)
	return nil
}

type updateRequest struct {
	EntityType        audit.EntityType `json:"entity_type"`
	EntityID          string           `json:"entity_id"`
	PreviousData      audit.Snapshot   `json:"previous_data"`
	CurrentData       audit.Snapshot   `json:"current_data"`
	ChangeDescription string           `json:"change_description"`
}

func (r *updateRequest) Validate() error {
	r.EntityID = strings.TrimSpace(r.EntityID)
	if r.EntityID == "" {
		return dErrors.New(dErrors.CodeValidation, "entity_id is required")
	}
	r.EntityType = audit.EntityType(strings.ToLower(strings.TrimSpace(string(r.EntityType))))
	return nil
}

type recordResponse struct {
	Status       audit.Status `json:"status"`
	Kind         audit.Kind   `json:"kind,omitempty"`
	EntryID      string       `json:"entry_id,omitempty"`
	ChangeFields []string     `json:"change_fields,omitempty"`
}

func toResponse(res audit.Result) recordResponse {
	resp := recordResponse{Status: res.Status}
	if res.Entry == nil {
		return resp
	}
	resp.Kind = res.Entry.Kind()
	resp.EntryID = res.Entry.EntryID().String()
	switch e := res.Entry.(type) {
	case audit.ModificationLog:
		resp.ChangeFields = e.ChangeFields
	case audit.GenericAudit:
		resp.ChangeFields = e.ChangeFields
	}
	return resp
}
