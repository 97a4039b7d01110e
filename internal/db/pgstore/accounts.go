package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/identity"
)

const accountColumns = `id, username, password_hash, display_name, role, is_active, last_login_at, created_at, updated_at`

type accountRow struct {
	ID           pgtype.UUID
	Username     string
	PasswordHash string
	DisplayName  pgtype.Text
	Role         string
	IsActive     bool
	LastLoginAt  pgtype.Timestamptz
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

func (r *accountRow) dest() []any {
	return []any{&r.ID, &r.Username, &r.PasswordHash, &r.DisplayName, &r.Role, &r.IsActive, &r.LastLoginAt, &r.CreatedAt, &r.UpdatedAt}
}

func (r accountRow) toAccount() (accounts.Account, error) {
	role, err := identity.ParseRole(r.Role)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("account %s: %w", db.UUIDToString(r.ID), err)
	}
	return accounts.Account{
		ID:           db.UUIDToString(r.ID),
		Username:     r.Username,
		DisplayName:  db.TextToString(r.DisplayName),
		Role:         role,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    db.TimeFromPg(r.CreatedAt),
		UpdatedAt:    db.TimeFromPg(r.UpdatedAt),
		LastLoginAt:  db.TimestampPtr(r.LastLoginAt),
	}, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return accounts.Account{}, notFound("account", id)
	}
	var row accountRow
	err = s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, pgID).Scan(row.dest()...)
	if err != nil {
		return accounts.Account{}, mapError(err, "account", id)
	}
	return row.toAccount()
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (accounts.Account, error) {
	var row accountRow
	err := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username).Scan(row.dest()...)
	if err != nil {
		return accounts.Account{}, mapError(err, "account", username)
	}
	return row.toAccount()
}

func (s *Store) CreateAccount(ctx context.Context, params accounts.CreateParams) (accounts.Account, error) {
	var row accountRow
	err := s.db.QueryRow(ctx, `
INSERT INTO accounts (username, password_hash, display_name, role, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+accountColumns,
		params.Username, params.PasswordHash, params.DisplayName, params.Role.String(), params.IsActive,
	).Scan(row.dest()...)
	if err != nil {
		return accounts.Account{}, mapError(err, "username", params.Username)
	}
	return row.toAccount()
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *Store) TouchAccountLogin(ctx context.Context, id string, at time.Time) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return notFound("account", id)
	}
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET last_login_at = $2, updated_at = now() WHERE id = $1`, pgID, at)
	if err != nil {
		return mapError(err, "account", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", id)
	}
	return nil
}
