package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/db"
)

const contactColumns = `id, wa_id, name, phone, created_at, updated_at`

type contactRow struct {
	ID        pgtype.UUID
	WaID      string
	Name      pgtype.Text
	Phone     pgtype.Text
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func (r *contactRow) dest() []any {
	return []any{&r.ID, &r.WaID, &r.Name, &r.Phone, &r.CreatedAt, &r.UpdatedAt}
}

func (r contactRow) toContact() contacts.Contact {
	return contacts.Contact{
		ID:        db.UUIDToString(r.ID),
		WaID:      r.WaID,
		Name:      db.TextPtr(r.Name),
		Phone:     db.TextPtr(r.Phone),
		CreatedAt: db.TimeFromPg(r.CreatedAt),
		UpdatedAt: db.TimeFromPg(r.UpdatedAt),
	}
}

func (s *Store) GetContact(ctx context.Context, id string) (contacts.Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return contacts.Contact{}, notFound("contact", id)
	}
	var row contactRow
	if err := s.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, pgID).Scan(row.dest()...); err != nil {
		return contacts.Contact{}, mapError(err, "contact", id)
	}
	return row.toContact(), nil
}

// UpsertContact keeps the stored name when name is nil.
func (s *Store) UpsertContact(ctx context.Context, waID string, name *string) (contacts.Contact, error) {
	var row contactRow
	err := s.db.QueryRow(ctx, `
INSERT INTO contacts (wa_id, name, phone)
VALUES ($1, $2, $1)
ON CONFLICT (wa_id) DO UPDATE
SET name = COALESCE(EXCLUDED.name, contacts.name),
    phone = EXCLUDED.phone,
    updated_at = now()
RETURNING `+contactColumns,
		waID, db.Text(name),
	).Scan(row.dest()...)
	if err != nil {
		return contacts.Contact{}, mapError(err, "contact", waID)
	}
	return row.toContact(), nil
}

func (s *Store) UpdateContactName(ctx context.Context, id string, name *string) (contacts.Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return contacts.Contact{}, notFound("contact", id)
	}
	var row contactRow
	err = s.db.QueryRow(ctx, `
UPDATE contacts SET name = $2, updated_at = now()
WHERE id = $1
RETURNING `+contactColumns,
		pgID, db.Text(name),
	).Scan(row.dest()...)
	if err != nil {
		return contacts.Contact{}, mapError(err, "contact", id)
	}
	return row.toContact(), nil
}
