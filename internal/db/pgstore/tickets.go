package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/identity"
	"github.com/memohai/inboxd/internal/tickets"
)

const ticketColumns = `id, contact_id, status, assigned_to_id, channel, last_message_at, wa_window_until, created_at, updated_at`

const activeStatuses = `('OPEN', 'PENDING')`

type ticketRow struct {
	ID            pgtype.UUID
	ContactID     pgtype.UUID
	Status        string
	AssignedToID  pgtype.UUID
	Channel       string
	LastMessageAt pgtype.Timestamptz
	WaWindowUntil pgtype.Timestamptz
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func (r *ticketRow) dest() []any {
	return []any{&r.ID, &r.ContactID, &r.Status, &r.AssignedToID, &r.Channel, &r.LastMessageAt, &r.WaWindowUntil, &r.CreatedAt, &r.UpdatedAt}
}

func (r ticketRow) toTicket() tickets.Ticket {
	t := tickets.Ticket{
		ID:            db.UUIDToString(r.ID),
		ContactID:     db.UUIDToString(r.ContactID),
		Status:        tickets.Status(r.Status),
		Channel:       r.Channel,
		LastMessageAt: db.TimestampPtr(r.LastMessageAt),
		WaWindowUntil: db.TimestampPtr(r.WaWindowUntil),
		CreatedAt:     db.TimeFromPg(r.CreatedAt),
		UpdatedAt:     db.TimeFromPg(r.UpdatedAt),
	}
	if r.AssignedToID.Valid {
		id := db.UUIDToString(r.AssignedToID)
		t.AssignedToID = &id
	}
	return t
}

// viewRow joins a ticket with its contact, assignee and optionally its latest message.
type viewRow struct {
	ticket       ticketRow
	contact      contactRow
	assigneeID   pgtype.UUID
	assigneeName pgtype.Text
	assigneeUser pgtype.Text
	assigneeRole pgtype.Text
	last         messageRow
}

func (r *viewRow) dest(withLast bool) []any {
	out := append(r.ticket.dest(), r.contact.dest()...)
	out = append(out, &r.assigneeID, &r.assigneeName, &r.assigneeUser, &r.assigneeRole)
	if withLast {
		out = append(out, r.last.dest()...)
	}
	return out
}

func (r viewRow) toView() tickets.View {
	v := tickets.View{Ticket: r.ticket.toTicket(), Contact: r.contact.toContact()}
	if r.assigneeID.Valid {
		name := db.TextToString(r.assigneeName)
		if name == "" {
			name = db.TextToString(r.assigneeUser)
		}
		role, _ := identity.ParseRole(db.TextToString(r.assigneeRole))
		v.AssignedTo = &tickets.Assignee{ID: db.UUIDToString(r.assigneeID), Name: name, Role: role}
	}
	if r.last.ID.Valid {
		m := r.last.toMessage()
		v.LastMessage = &m
	}
	return v
}

func viewSelect(withLast bool) string {
	var b strings.Builder
	b.WriteString(`SELECT t.id, t.contact_id, t.status, t.assigned_to_id, t.channel, t.last_message_at, t.wa_window_until, t.created_at, t.updated_at,
  c.id, c.wa_id, c.name, c.phone, c.created_at, c.updated_at,
  a.id, a.display_name, a.username, a.role`)
	if withLast {
		b.WriteString(`,
  lm.id, lm.ticket_id, lm.direction, lm.type, lm.text, lm.media_url, lm.mime_type, lm.size_bytes, lm.duration_ms, lm.provider_message_id, lm.status, lm.created_at`)
	}
	b.WriteString(`
FROM tickets t
JOIN contacts c ON c.id = t.contact_id
LEFT JOIN accounts a ON a.id = t.assigned_to_id`)
	if withLast {
		b.WriteString(`
LEFT JOIN LATERAL (
  SELECT ` + messageColumns + ` FROM messages m
  WHERE m.ticket_id = t.id
  ORDER BY m.created_at DESC, m.id DESC
  LIMIT 1
) lm ON true`)
	}
	return b.String()
}

// filterClause renders the WHERE clause for a queue filter. ok is false when the
// filter cannot match anything, e.g. an actor id that is not a UUID.
func filterClause(filter tickets.Filter) (clause string, args []any, ok bool) {
	base := `t.status IN ` + activeStatuses
	switch filter.Scope {
	case tickets.ScopeAllActive:
		return base, nil, true
	case tickets.ScopeUnassigned:
		return base + ` AND t.assigned_to_id IS NULL`, nil, true
	case tickets.ScopeAssignedTo, tickets.ScopeAssignedToOrUnassigned:
		actorID, err := db.ParseUUID(filter.ActorID)
		if err != nil {
			if filter.Scope == tickets.ScopeAssignedToOrUnassigned {
				return base + ` AND t.assigned_to_id IS NULL`, nil, true
			}
			return "", nil, false
		}
		if filter.Scope == tickets.ScopeAssignedTo {
			return base + ` AND t.assigned_to_id = $1`, []any{actorID}, true
		}
		return base + ` AND (t.assigned_to_id IS NULL OR t.assigned_to_id = $1)`, []any{actorID}, true
	default:
		return "", nil, false
	}
}

func (s *Store) GetTicket(ctx context.Context, id string) (tickets.Ticket, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	var row ticketRow
	if err := s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, pgID).Scan(row.dest()...); err != nil {
		return tickets.Ticket{}, mapError(err, "ticket", id)
	}
	return row.toTicket(), nil
}

func (s *Store) GetTicketView(ctx context.Context, id string) (tickets.View, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return tickets.View{}, notFound("ticket", id)
	}
	var row viewRow
	if err := s.db.QueryRow(ctx, viewSelect(false)+` WHERE t.id = $1`, pgID).Scan(row.dest(false)...); err != nil {
		return tickets.View{}, mapError(err, "ticket", id)
	}
	return row.toView(), nil
}

// ListTickets orders by lastMessageAt desc (nulls last), then updatedAt desc.
func (s *Store) ListTickets(ctx context.Context, filter tickets.Filter) ([]tickets.View, error) {
	clause, args, ok := filterClause(filter)
	if !ok {
		return []tickets.View{}, nil
	}
	query := viewSelect(true) + `
WHERE ` + clause + `
ORDER BY t.last_message_at DESC NULLS LAST, t.updated_at DESC, t.id`
	if filter.Take > 0 {
		args = append(args, filter.Take)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Skip > 0 {
		args = append(args, filter.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	out := make([]tickets.View, 0)
	for rows.Next() {
		var row viewRow
		if err := rows.Scan(row.dest(true)...); err != nil {
			return nil, err
		}
		out = append(out, row.toView())
	}
	return out, rows.Err()
}

func (s *Store) CountTickets(ctx context.Context, filter tickets.Filter) (int, error) {
	clause, args, ok := filterClause(filter)
	if !ok {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM tickets t WHERE `+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}

// FindOrCreateActiveTicket relies on the partial unique index over active tickets.
// A concurrent insert makes ON CONFLICT return no row, and the next attempt reads
// the winner.
func (s *Store) FindOrCreateActiveTicket(ctx context.Context, contactID string, at, windowUntil time.Time) (tickets.Ticket, bool, error) {
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return tickets.Ticket{}, false, notFound("contact", contactID)
	}
	for range findOrCreateAttempts {
		var row ticketRow
		err := s.db.QueryRow(ctx, `
SELECT `+ticketColumns+` FROM tickets
WHERE contact_id = $1 AND status IN `+activeStatuses+`
ORDER BY created_at DESC
LIMIT 1`, pgID).Scan(row.dest()...)
		if err == nil {
			return row.toTicket(), false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return tickets.Ticket{}, false, mapError(err, "contact", contactID)
		}

		err = s.db.QueryRow(ctx, `
INSERT INTO tickets (contact_id, status, channel, last_message_at, wa_window_until)
VALUES ($1, 'OPEN', $2, $3, $4)
ON CONFLICT (contact_id) WHERE status IN `+activeStatuses+` DO NOTHING
RETURNING `+ticketColumns,
			pgID, tickets.ChannelWhatsApp, at, windowUntil,
		).Scan(row.dest()...)
		if err == nil {
			return row.toTicket(), true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return tickets.Ticket{}, false, mapError(err, "contact", contactID)
		}
	}
	return tickets.Ticket{}, false, fmt.Errorf("%w: active ticket for contact %s kept changing", errdefs.ErrConflict, contactID)
}

// TouchTicket never moves lastMessageAt or waWindowUntil backward. GREATEST ignores NULL.
func (s *Store) TouchTicket(ctx context.Context, params tickets.TouchParams) (tickets.Ticket, error) {
	pgID, err := db.ParseUUID(params.TicketID)
	if err != nil {
		return tickets.Ticket{}, notFound("ticket", params.TicketID)
	}
	var row ticketRow
	err = s.db.QueryRow(ctx, `
UPDATE tickets
SET last_message_at = GREATEST(last_message_at, $2::timestamptz),
    wa_window_until = GREATEST(wa_window_until, $3::timestamptz),
    status = CASE WHEN $4::boolean THEN 'OPEN' ELSE status END,
    updated_at = now()
WHERE id = $1
RETURNING `+ticketColumns,
		pgID, params.At, params.WindowUntil, params.Reopen,
	).Scan(row.dest()...)
	if err != nil {
		return tickets.Ticket{}, mapError(err, "ticket", params.TicketID)
	}
	return row.toTicket(), nil
}

// ownerCondition restricts a ticket update to the ownership the caller was
// authorized against. A NULL owner means no condition; the boolean also
// accepts an unassigned ticket.
func ownerCondition(ownerArg, unassignedArg int) string {
	return fmt.Sprintf("($%[1]d::uuid IS NULL OR assigned_to_id = $%[1]d::uuid OR ($%[2]d::boolean AND assigned_to_id IS NULL))", ownerArg, unassignedArg)
}

// ownerParams renders owner as the two ownerCondition arguments. An actor id
// that is not a UUID can own nothing, so it becomes the nil UUID.
func ownerParams(owner tickets.Owner) (pgtype.UUID, bool) {
	if owner.ActorID == "" {
		return pgtype.UUID{}, false
	}
	id, err := db.ParseUUID(owner.ActorID)
	if err != nil {
		return pgtype.UUID{Valid: true}, owner.AllowUnassigned
	}
	return id, owner.AllowUnassigned
}

// missedUpdate explains a conditional update that touched no row.
func (s *Store) missedUpdate(ctx context.Context, id string, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapError(err, "ticket", id)
	}
	if _, getErr := s.GetTicket(ctx, id); getErr != nil {
		return getErr
	}
	return tickets.ErrOwnershipChanged
}

// AssignTicket also reopens the ticket; the active-ticket index turns a second
// active ticket for the contact into a conflict.
func (s *Store) AssignTicket(ctx context.Context, id, assigneeID string, owner tickets.Owner) (tickets.Ticket, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	assignee, err := db.ParseUUID(assigneeID)
	if err != nil {
		return tickets.Ticket{}, notFound("account", assigneeID)
	}
	ownerID, allowUnassigned := ownerParams(owner)
	var row ticketRow
	err = s.db.QueryRow(ctx, `
UPDATE tickets
SET assigned_to_id = $2, status = 'OPEN', updated_at = now()
WHERE id = $1 AND `+ownerCondition(3, 4)+`
RETURNING `+ticketColumns,
		pgID, assignee, ownerID, allowUnassigned,
	).Scan(row.dest()...)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return tickets.Ticket{}, notFound("account", assigneeID)
		}
		return tickets.Ticket{}, s.missedUpdate(ctx, id, err)
	}
	return row.toTicket(), nil
}

func (s *Store) CloseTicket(ctx context.Context, id string, owner tickets.Owner) (tickets.Ticket, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	ownerID, allowUnassigned := ownerParams(owner)
	var row ticketRow
	err = s.db.QueryRow(ctx, `
UPDATE tickets SET status = 'CLOSED', updated_at = now()
WHERE id = $1 AND `+ownerCondition(2, 3)+`
RETURNING `+ticketColumns,
		pgID, ownerID, allowUnassigned,
	).Scan(row.dest()...)
	if err != nil {
		return tickets.Ticket{}, s.missedUpdate(ctx, id, err)
	}
	return row.toTicket(), nil
}
