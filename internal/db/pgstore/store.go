// Package pgstore implements the inbox repositories on PostgreSQL through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/tickets"
)

var (
	_ accounts.Store = (*Store)(nil)
	_ contacts.Store = (*Store)(nil)
	_ tickets.Store  = (*Store)(nil)
	_ message.Store  = (*Store)(nil)
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs every repository query against one pool.
type Store struct {
	db DBTX
}

// New creates a store on top of a pool or transaction.
func New(conn DBTX) *Store {
	return &Store{db: conn}
}

// findOrCreateAttempts bounds the select-then-insert loop when another writer
// wins the race on the active-ticket index.
const findOrCreateAttempts = 3

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", errdefs.ErrNotFound, kind, id)
}

// mapError turns pgx and constraint errors into errdefs kinds.
func mapError(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return notFound(kind, id)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s %s references a missing record", errdefs.ErrNotFound, kind, id)
	case db.IsUniqueViolation(err):
		if constraintName(err) == activeTicketIndex {
			return fmt.Errorf("%w: contact already has an active ticket", errdefs.ErrConflict)
		}
		return fmt.Errorf("%w: %s %s", errdefs.ErrAlreadyExists, kind, id)
	default:
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
}

const activeTicketIndex = "idx_tickets_active_contact"

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
