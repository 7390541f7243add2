// Package audit records immutable audit entries for business mutations.
//
// Every record operation returns a Result whose Status tells the caller
// whether an entry was written, whether there was nothing to write, or whether
// the write failed. A failed write is never reported as "nothing changed".
package audit

//go:generate mockgen -source=recorder.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medorder/internal/audit/changes"
	"medorder/internal/audit/metrics"
	dErrors "medorder/pkg/domain-errors"
	"medorder/pkg/requestcontext"
)

var tracer = otel.Tracer("medorder/audit")

// ErrWriteFailed matches every error returned for a failed durable write.
var ErrWriteFailed = errors.New("audit write failed")

// Store persists audit entries. It is append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// Status is the outcome of a record operation.
type Status string

const (
	StatusRecorded    Status = "recorded"
	StatusNoChange    Status = "no_change"
	StatusWriteFailed Status = "write_failed"
)

// Result carries the outcome and, for recorded and write_failed, the entry
// that was (or would have been) written.
type Result struct {
	Status Status
	Entry  Entry
}

// ModificationInput describes an order edit.
type ModificationInput struct {
	OrderID    string
	ModifiedBy string
	Previous   Snapshot
	Current    Snapshot
	Reason     string
}

// DeletionInput describes a deleted order or product.
type DeletionInput struct {
	EntityID  string
	DeletedBy string
	Data      Snapshot
	Reason    string
}

// GenericInput describes an action whose changed fields the caller already
// knows. Previous is nil for creations.
type GenericInput struct {
	EntityType   EntityType
	EntityID     string
	Action       Action
	ChangedBy    string
	Previous     *Snapshot
	Current      Snapshot
	ChangeFields []string
	Description  string
	IPAddress    string
	UserAgent    string
}

// UpdateInput describes an update whose changed fields are derived by diffing
// the two snapshots.
type UpdateInput struct {
	EntityType  EntityType
	EntityID    string
	ChangedBy   string
	Previous    Snapshot
	Current     Snapshot
	Description string
	IPAddress   string
	UserAgent   string
}

// Recorder builds audit entries and appends them to a Store.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	newID   func() uuid.UUID
}

// Option configures the Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// New creates a recorder writing to store.
func New(store Store, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		tracer: tracer,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RecordModification writes a ModificationLog holding only the changed values
// of in.Current plus the full previous snapshot. Identical snapshots yield
// StatusNoChange and no write.
func (r *Recorder) RecordModification(ctx context.Context, in ModificationInput) (Result, error) {
	if err := requireIDs("order_id", in.OrderID, "modified_by", in.ModifiedBy); err != nil {
		return Result{}, err
	}
	delta := changes.DiffAny(in.Previous, in.Current)
	if delta.Empty() {
		r.metrics.IncRecord(string(KindOrderModification), string(StatusNoChange))
		return Result{Status: StatusNoChange}, nil
	}
	return r.write(ctx, ModificationLog{
		ID:           r.newID(),
		OrderID:      in.OrderID,
		ModifiedBy:   in.ModifiedBy,
		ModifiedAt:   requestcontext.Now(ctx).UTC(),
		PreviousData: in.Previous.Clone(),
		ChangedData:  delta.Values,
		ChangeFields: delta.Fields,
		ChangeReason: in.Reason,
	})
}

// RecordOrderDeletion writes the full pre-deletion snapshot of an order.
// The snapshot is written as given, even when empty.
func (r *Recorder) RecordOrderDeletion(ctx context.Context, in DeletionInput) (Result, error) {
	return r.recordDeletion(ctx, KindOrderDeletion, "order_id", in)
}

// RecordProductDeletion writes the full pre-deletion snapshot of a product.
func (r *Recorder) RecordProductDeletion(ctx context.Context, in DeletionInput) (Result, error) {
	return r.recordDeletion(ctx, KindProductDeletion, "product_id", in)
}

func (r *Recorder) recordDeletion(ctx context.Context, kind Kind, idField string, in DeletionInput) (Result, error) {
	if err := requireIDs(idField, in.EntityID, "deleted_by", in.DeletedBy); err != nil {
		return Result{}, err
	}
	return r.write(ctx, DeletionLog{
		ID:             r.newID(),
		EntityKind:     kind,
		EntityID:       in.EntityID,
		DeletedBy:      in.DeletedBy,
		DeletedAt:      requestcontext.Now(ctx).UTC(),
		Data:           in.Data.Clone(),
		DeletionReason: in.Reason,
	})
}

// RecordGenericAudit writes a GenericAudit entry with caller-supplied changed
// fields. Missing request metadata is taken from the request context.
func (r *Recorder) RecordGenericAudit(ctx context.Context, in GenericInput) (Result, error) {
	if err := validateGeneric(in); err != nil {
		return Result{}, err
	}
	entry := GenericAudit{
		ID:                r.newID(),
		EntityType:        in.EntityType,
		EntityID:          in.EntityID,
		Action:            in.Action,
		ChangedBy:         in.ChangedBy,
		ChangedAt:         requestcontext.Now(ctx).UTC(),
		CurrentData:       in.Current.Clone(),
		ChangeFields:      slices.Clone(in.ChangeFields),
		ChangeDescription: in.Description,
		IPAddress:         in.IPAddress,
		UserAgent:         in.UserAgent,
	}
	if entry.ChangeFields == nil {
		entry.ChangeFields = []string{}
	}
	if in.Previous != nil {
		prev := in.Previous.Clone()
		entry.PreviousData = &prev
	}
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	return r.write(ctx, entry)
}

// RecordUpdate diffs the snapshots and writes an update GenericAudit listing
// the changed fields. Identical snapshots yield StatusNoChange.
func (r *Recorder) RecordUpdate(ctx context.Context, in UpdateInput) (Result, error) {
	if !in.EntityType.IsValid() {
		return Result{}, dErrors.New(dErrors.CodeValidation, "entity_type is invalid")
	}
	if err := requireIDs("entity_id", in.EntityID, "changed_by", in.ChangedBy); err != nil {
		return Result{}, err
	}
	delta := changes.DiffAny(in.Previous, in.Current)
	if delta.Empty() {
		r.metrics.IncRecord(string(KindAudit), string(StatusNoChange))
		return Result{Status: StatusNoChange}, nil
	}
	previous := in.Previous
	return r.RecordGenericAudit(ctx, GenericInput{
		EntityType:   in.EntityType,
		EntityID:     in.EntityID,
		Action:       ActionUpdate,
		ChangedBy:    in.ChangedBy,
		Previous:     &previous,
		Current:      in.Current,
		ChangeFields: delta.Fields,
		Description:  in.Description,
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
	})
}

func (r *Recorder) write(ctx context.Context, entry Entry) (Result, error) {
	kind := string(entry.Kind())
	ctx, span := r.tracer.Start(ctx, "audit.Append",
		trace.WithAttributes(
			attribute.String("audit.kind", kind),
			attribute.String("audit.entity", entry.EntityKey()),
		),
	)
	defer span.End()

	start := time.Now()
	err := r.store.Append(ctx, entry)
	r.metrics.ObserveWrite(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		r.metrics.IncRecord(kind, string(StatusWriteFailed))
		r.logger.ErrorContext(ctx, "audit write failed",
			"kind", kind,
			"entry_id", entry.EntryID(),
			"entity", entry.EntityKey(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return Result{Status: StatusWriteFailed, Entry: entry}, fmt.Errorf("%w: %s: %w", ErrWriteFailed, kind, err)
	}
	span.SetStatus(codes.Ok, "")
	r.metrics.IncRecord(kind, string(StatusRecorded))
	return Result{Status: StatusRecorded, Entry: entry}, nil
}

func validateGeneric(in GenericInput) error {
	if !in.EntityType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "entity_type is invalid")
	}
	if !in.Action.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "action is invalid")
	}
	if err := requireIDs("entity_id", in.EntityID, "changed_by", in.ChangedBy); err != nil {
		return err
	}
	if in.Current.Len() == 0 {
		return dErrors.New(dErrors.CodeValidation, "current_data is required")
	}
	if in.Action == ActionUpdate && len(in.ChangeFields) == 0 {
		return dErrors.New(dErrors.CodeValidation, "change_fields is required for update")
	}
	for _, field := range in.ChangeFields {
		if !in.Current.Has(field) {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("change field %q is not in current_data", field))
		}
	}
	return nil
}

// requireIDs takes name/value pairs and rejects the first empty value.
func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return dErrors.New(dErrors.CodeValidation, pairs[i]+" is required")
		}
	}
	return nil
}
