package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/message"
)

const messageColumns = `id, ticket_id, direction, type, text, media_url, mime_type, size_bytes, duration_ms, provider_message_id, status, created_at`

// messageRow scans a message whose columns may all be NULL, as produced by the
// last-message lateral join.
type messageRow struct {
	ID                pgtype.UUID
	TicketID          pgtype.UUID
	Direction         pgtype.Text
	Type              pgtype.Text
	Text              pgtype.Text
	MediaURL          pgtype.Text
	MimeType          pgtype.Text
	SizeBytes         pgtype.Int8
	DurationMs        pgtype.Int8
	ProviderMessageID pgtype.Text
	Status            pgtype.Text
	CreatedAt         pgtype.Timestamptz
}

func (r *messageRow) dest() []any {
	return []any{
		&r.ID, &r.TicketID, &r.Direction, &r.Type, &r.Text, &r.MediaURL, &r.MimeType,
		&r.SizeBytes, &r.DurationMs, &r.ProviderMessageID, &r.Status, &r.CreatedAt,
	}
}

func (r messageRow) toMessage() message.Message {
	return message.Message{
		ID:                db.UUIDToString(r.ID),
		TicketID:          db.UUIDToString(r.TicketID),
		Direction:         message.Direction(db.TextToString(r.Direction)),
		Type:              message.Type(db.TextToString(r.Type)),
		Text:              db.TextPtr(r.Text),
		MediaURL:          db.TextPtr(r.MediaURL),
		MimeType:          db.TextPtr(r.MimeType),
		SizeBytes:         int8Ptr(r.SizeBytes),
		DurationMs:        int8Ptr(r.DurationMs),
		ProviderMessageID: db.TextPtr(r.ProviderMessageID),
		Status:            message.Status(db.TextToString(r.Status)),
		CreatedAt:         db.TimeFromPg(r.CreatedAt),
	}
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func int8Value(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func (s *Store) CreateMessage(ctx context.Context, input message.CreateInput) (message.Message, error) {
	ticketID, err := db.ParseUUID(input.TicketID)
	if err != nil {
		return message.Message{}, notFound("ticket", input.TicketID)
	}
	createdAt := pgtype.Timestamptz{}
	if !input.CreatedAt.IsZero() {
		createdAt = pgtype.Timestamptz{Time: input.CreatedAt, Valid: true}
	}
	var row messageRow
	err = s.db.QueryRow(ctx, `
INSERT INTO messages (ticket_id, direction, type, text, media_url, mime_type, size_bytes, duration_ms, provider_message_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11::timestamptz, now()))
RETURNING `+messageColumns,
		ticketID, string(input.Direction), string(input.Type), db.Text(input.Text), db.Text(input.MediaURL),
		db.Text(input.MimeType), int8Value(input.SizeBytes), int8Value(input.DurationMs),
		db.Text(input.ProviderMessageID), string(input.Status), createdAt,
	).Scan(row.dest()...)
	if err != nil {
		if db.IsUniqueViolation(err) && input.ProviderMessageID != nil {
			return message.Message{}, mapError(err, "provider message", *input.ProviderMessageID)
		}
		return message.Message{}, mapError(err, "ticket", input.TicketID)
	}
	return row.toMessage(), nil
}

func (s *Store) GetMessageByProviderID(ctx context.Context, providerMessageID string) (message.Message, error) {
	var row messageRow
	err := s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE provider_message_id = $1`, providerMessageID).Scan(row.dest()...)
	if err != nil {
		return message.Message{}, mapError(err, "message", providerMessageID)
	}
	return row.toMessage(), nil
}

func (s *Store) ListMessagesByTicket(ctx context.Context, ticketID string) ([]message.Message, error) {
	pgID, err := db.ParseUUID(ticketID)
	if err != nil {
		return []message.Message{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE ticket_id = $1 ORDER BY created_at, id`, pgID)
	if err != nil {
		return nil, mapError(err, "ticket", ticketID)
	}
	defer rows.Close()
	out := make([]message.Message, 0)
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		out = append(out, row.toMessage())
	}
	return out, rows.Err()
}

// UpdateMessageStatus moves the message to status only while its current status
// is one of from; otherwise it returns the stored message with applied=false.
func (s *Store) UpdateMessageStatus(ctx context.Context, messageID string, status message.Status, from []message.Status) (message.Message, bool, error) {
	pgID, err := db.ParseUUID(messageID)
	if err != nil {
		return message.Message{}, false, notFound("message", messageID)
	}
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}
	var row messageRow
	err = s.db.QueryRow(ctx, `
UPDATE messages SET status = $2, updated_at = now()
WHERE id = $1 AND status = ANY($3::text[])
RETURNING `+messageColumns,
		pgID, string(status), allowed,
	).Scan(row.dest()...)
	if err == nil {
		return row.toMessage(), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return message.Message{}, false, mapError(err, "message", messageID)
	}
	var current messageRow
	if err := s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, pgID).Scan(current.dest()...); err != nil {
		return message.Message{}, false, mapError(err, "message", messageID)
	}
	return current.toMessage(), false, nil
}
