package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"medorder/internal/audit"
	txcontext "medorder/pkg/platform/tx"
)

// Schema creates the append-only audit tables. Snapshots are stored as jsonb,
// which keeps every field but not the captured key order; change_fields
// carries the order of a modification.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id                 uuid PRIMARY KEY,
	entity_type        text        NOT NULL,
	entity_id          text        NOT NULL,
	action             text        NOT NULL,
	changed_by         text        NOT NULL,
	changed_at         timestamptz NOT NULL,
	previous_data      jsonb,
	current_data       jsonb       NOT NULL,
	change_fields      text[]      NOT NULL DEFAULT '{}',
	change_description text,
	ip_address         text,
	user_agent         text
);
CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id, changed_at);

CREATE TABLE IF NOT EXISTS order_modification_logs (
	id            uuid PRIMARY KEY,
	order_id      text        NOT NULL,
	modified_by   text        NOT NULL,
	modified_at   timestamptz NOT NULL,
	previous_data jsonb       NOT NULL,
	changed_data  jsonb       NOT NULL,
	change_fields text[]      NOT NULL CHECK (cardinality(change_fields) > 0),
	change_reason text
);
CREATE INDEX IF NOT EXISTS order_modification_logs_order_idx ON order_modification_logs (order_id, modified_at);

CREATE TABLE IF NOT EXISTS order_deletion_logs (
	id              uuid PRIMARY KEY,
	order_id        text        NOT NULL,
	deleted_by      text        NOT NULL,
	deleted_at      timestamptz NOT NULL,
	order_data      jsonb       NOT NULL,
	deletion_reason text
);

CREATE TABLE IF NOT EXISTS product_deletion_logs (
	id              uuid PRIMARY KEY,
	product_id      text        NOT NULL,
	deleted_by      text        NOT NULL,
	deleted_at      timestamptz NOT NULL,
	product_data    jsonb       NOT NULL,
	deletion_reason text
);
`

const (
	insertAudit = `
		INSERT INTO audit_logs (
			id, entity_type, entity_id, action, changed_by, changed_at,
			previous_data, current_data, change_fields, change_description,
			ip_address, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	insertModification = `
		INSERT INTO order_modification_logs (
			id, order_id, modified_by, modified_at,
			previous_data, changed_data, change_fields, change_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	insertOrderDeletion = `
		INSERT INTO order_deletion_logs (id, order_id, deleted_by, deleted_at, order_data, deletion_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	insertProductDeletion = `
		INSERT INTO product_deletion_logs (id, product_id, deleted_by, deleted_at, product_data, deletion_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
)

// Store implements audit.Store on PostgreSQL. Writes join a transaction
// carried in the context, so a mutation and its audit entry can commit
// together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the audit tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.execer(ctx).ExecContext(ctx, Schema); err != nil {
			return fmt.Errorf("create audit schema: %w", err)
		}
		return nil
	})
}

// Append inserts the entry into the table for its kind.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	switch e := entry.(type) {
	case audit.GenericAudit:
		return s.appendAudit(ctx, e)
	case audit.ModificationLog:
		return s.appendModification(ctx, e)
	case audit.DeletionLog:
		return s.appendDeletion(ctx, e)
	default:
		return fmt.Errorf("unsupported audit entry %T", entry)
	}
}

func (s *Store) appendAudit(ctx context.Context, e audit.GenericAudit) error {
	current, err := json.Marshal(e.CurrentData)
	if err != nil {
		return fmt.Errorf("marshal current_data: %w", err)
	}
	var previous any
	if e.PreviousData != nil {
		b, err := json.Marshal(e.PreviousData)
		if err != nil {
			return fmt.Errorf("marshal previous_data: %w", err)
		}
		previous = b
	}
	fields := e.ChangeFields
	if fields == nil {
		fields = []string{}
	}
	_, err = s.execer(ctx).ExecContext(ctx, insertAudit,
		e.ID,
		string(e.EntityType),
		e.EntityID,
		string(e.Action),
		e.ChangedBy,
		e.ChangedAt,
		previous,
		current,
		pq.Array(fields),
		nullable(e.ChangeDescription),
		nullable(e.IPAddress),
		nullable(e.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *Store) appendModification(ctx context.Context, e audit.ModificationLog) error {
	previous, err := json.Marshal(e.PreviousData)
	if err != nil {
		return fmt.Errorf("marshal previous_data: %w", err)
	}
	changed, err := json.Marshal(e.ChangedData)
	if err != nil {
		return fmt.Errorf("marshal changed_data: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, insertModification,
		e.ID,
		e.OrderID,
		e.ModifiedBy,
		e.ModifiedAt,
		previous,
		changed,
		pq.Array(e.ChangeFields),
		nullable(e.ChangeReason),
	)
	if err != nil {
		return fmt.Errorf("insert order modification log: %w", err)
	}
	return nil
}

func (s *Store) appendDeletion(ctx context.Context, e audit.DeletionLog) error {
	query := insertOrderDeletion
	if e.EntityKind == audit.KindProductDeletion {
		query = insertProductDeletion
	} else if e.EntityKind != audit.KindOrderDeletion {
		return fmt.Errorf("unsupported deletion kind %q", e.EntityKind)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal deleted snapshot: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, query,
		e.ID,
		e.EntityID,
		e.DeletedBy,
		e.DeletedAt,
		data,
		nullable(e.DeletionReason),
	)
	if err != nil {
		return fmt.Errorf("insert %s log: %w", e.EntityKind, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
