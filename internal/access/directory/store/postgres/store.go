package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"medorder/internal/access/models"
	"medorder/pkg/platform/sentinel"
)

// Store reads roles from the users table owned by the account service.
// Role writes happen elsewhere; this store is read-only.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindRole returns the stored role as written, lower-cased. Validation of the
// value belongs to the directory service.
func (s *Store) FindRole(ctx context.Context, principalID string) (models.Role, error) {
	const query = `SELECT role FROM users WHERE principal_id = $1`

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, query, principalID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find role: %w", err)
	}
	if !raw.Valid {
		return "", sentinel.ErrNotFound
	}
	return models.Role(strings.ToLower(strings.TrimSpace(raw.String))), nil
}
