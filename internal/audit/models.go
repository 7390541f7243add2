package audit

import (
	"time"

	"github.com/google/uuid"

	"medorder/internal/audit/changes"
)

// Snapshot is a point-in-time copy of a business record's fields.
type Snapshot = changes.Record[any]

// Kind identifies the shape of an audit entry and the collection it lands in.
type Kind string

const (
	KindAudit             Kind = "audit"
	KindOrderModification Kind = "order_modification"
	KindOrderDeletion     Kind = "order_deletion"
	KindProductDeletion   Kind = "product_deletion"
)

// EntityType is the kind of business record a generic audit entry describes.
type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityProduct  EntityType = "product"
	EntityCategory EntityType = "category"
	EntityUser     EntityType = "user"
	EntityAgency   EntityType = "agency"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityOrder, EntityProduct, EntityCategory, EntityUser, EntityAgency:
		return true
	}
	return false
}

// Action is what happened to the entity.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionStatusChange Action = "status_change"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionStatusChange:
		return true
	}
	return false
}

// Entry is an immutable audit record. The concrete types are GenericAudit,
// ModificationLog and DeletionLog.
type Entry interface {
	EntryID() uuid.UUID
	Kind() Kind
	// EntityKey identifies the audited entity; used as the stream partition key.
	EntityKey() string
	OccurredAt() time.Time
	isEntry()
}

// GenericAudit describes one action against any entity. Optional string
// fields are empty when absent.
type GenericAudit struct {
	ID                uuid.UUID  `json:"id"`
	EntityType        EntityType `json:"entity_type"`
	EntityID          string     `json:"entity_id"`
	Action            Action     `json:"action"`
	ChangedBy         string     `json:"changed_by"`
	ChangedAt         time.Time  `json:"changed_at"`
	PreviousData      *Snapshot  `json:"previous_data"`
	CurrentData       Snapshot   `json:"current_data"`
	ChangeFields      []string   `json:"change_fields"`
	ChangeDescription string     `json:"change_description,omitempty"`
	IPAddress         string     `json:"ip_address,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
}

// ModificationLog records an order edit. ChangedData holds only the changed
// fields; PreviousData is the full snapshot before the edit.
type ModificationLog struct {
	ID           uuid.UUID `json:"id"`
	OrderID      string    `json:"order_id"`
	ModifiedBy   string    `json:"modified_by"`
	ModifiedAt   time.Time `json:"modified_at"`
	PreviousData Snapshot  `json:"previous_data"`
	ChangedData  Snapshot  `json:"changed_data"`
	ChangeFields []string  `json:"change_fields"`
	ChangeReason string    `json:"change_reason,omitempty"`
}

// DeletionLog records the deletion of an order or product with its full
// pre-deletion snapshot.
type DeletionLog struct {
	ID             uuid.UUID `json:"id"`
	EntityKind     Kind      `json:"kind"`
	EntityID       string    `json:"entity_id"`
	DeletedBy      string    `json:"deleted_by"`
	DeletedAt      time.Time `json:"deleted_at"`
	Data           Snapshot  `json:"data"`
	DeletionReason string    `json:"deletion_reason,omitempty"`
}

func (e GenericAudit) EntryID() uuid.UUID    { return e.ID }
func (e GenericAudit) Kind() Kind            { return KindAudit }
func (e GenericAudit) EntityKey() string     { return string(e.EntityType) + ":" + e.EntityID }
func (e GenericAudit) OccurredAt() time.Time { return e.ChangedAt }
func (GenericAudit) isEntry()                {}

func (e ModificationLog) EntryID() uuid.UUID    { return e.ID }
func (e ModificationLog) Kind() Kind            { return KindOrderModification }
func (e ModificationLog) EntityKey() string     { return string(EntityOrder) + ":" + e.OrderID }
func (e ModificationLog) OccurredAt() time.Time { return e.ModifiedAt }
func (ModificationLog) isEntry()                {}

func (e DeletionLog) EntryID() uuid.UUID { return e.ID }
func (e DeletionLog) Kind() Kind         { return e.EntityKind }
func (e DeletionLog) EntityKey() string {
	if e.EntityKind == KindProductDeletion {
		return string(EntityProduct) + ":" + e.EntityID
	}
	return string(EntityOrder) + ":" + e.EntityID
}
func (e DeletionLog) OccurredAt() time.Time { return e.DeletedAt }
func (DeletionLog) isEntry()                {}
