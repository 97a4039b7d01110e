package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/tickets"
)

const actorID = "7b0c8d4e-1f0a-4a55-9f0e-0d1e2f3a4b5c"

func TestFilterClause(t *testing.T) {
	tests := []struct {
		name     string
		filter   tickets.Filter
		clause   string
		argCount int
		ok       bool
	}{
		{
			name:   "all active",
			filter: tickets.Filter{Scope: tickets.ScopeAllActive},
			clause: `t.status IN ('OPEN', 'PENDING')`,
			ok:     true,
		},
		{
			name:   "unassigned",
			filter: tickets.Filter{Scope: tickets.ScopeUnassigned},
			clause: `t.status IN ('OPEN', 'PENDING') AND t.assigned_to_id IS NULL`,
			ok:     true,
		},
		{
			name:     "assigned to actor",
			filter:   tickets.Filter{Scope: tickets.ScopeAssignedTo, ActorID: actorID},
			clause:   `t.status IN ('OPEN', 'PENDING') AND t.assigned_to_id = $1`,
			argCount: 1,
			ok:       true,
		},
		{
			name:     "assigned or unassigned",
			filter:   tickets.Filter{Scope: tickets.ScopeAssignedToOrUnassigned, ActorID: actorID},
			clause:   `t.status IN ('OPEN', 'PENDING') AND (t.assigned_to_id IS NULL OR t.assigned_to_id = $1)`,
			argCount: 1,
			ok:       true,
		},
		{
			name:   "non uuid actor matches nothing of its own",
			filter: tickets.Filter{Scope: tickets.ScopeAssignedTo, ActorID: "u1"},
		},
		{
			name:   "non uuid actor still sees unassigned",
			filter: tickets.Filter{Scope: tickets.ScopeAssignedToOrUnassigned, ActorID: "u1"},
			clause: `t.status IN ('OPEN', 'PENDING') AND t.assigned_to_id IS NULL`,
			ok:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args, ok := filterClause(tt.filter)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.clause, clause)
			assert.Len(t, args, tt.argCount)
		})
	}
}

func TestMapError(t *testing.T) {
	require.NoError(t, mapError(nil, "ticket", "t1"))

	err := mapError(pgx.ErrNoRows, "ticket", "t1")
	assert.True(t, errdefs.IsNotFound(err))

	err = mapError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), "ticket", "t1")
	assert.True(t, errdefs.IsNotFound(err))

	err = mapError(&pgconn.PgError{Code: "23505", ConstraintName: "messages_provider_message_id_unique"}, "provider message", "wamid.1")
	assert.True(t, errdefs.IsAlreadyExists(err))

	err = mapError(&pgconn.PgError{Code: "23505", ConstraintName: activeTicketIndex}, "ticket", "t1")
	assert.True(t, errdefs.IsConflict(err))

	boom := errors.New("boom")
	err = mapError(boom, "ticket", "t1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errdefs.IsNotFound(err))
}

func TestViewSelectIncludesLastMessageOnlyForLists(t *testing.T) {
	assert.NotContains(t, viewSelect(false), "LATERAL")
	assert.Contains(t, viewSelect(true), "LEFT JOIN LATERAL")

	var row viewRow
	assert.Len(t, row.dest(false), 9+6+4)
	assert.Len(t, row.dest(true), 9+6+4+12)
}

func TestOwnerParams(t *testing.T) {
	id, allow := ownerParams(tickets.Owner{})
	assert.False(t, id.Valid, "no owner condition binds NULL")
	assert.False(t, allow)

	const agent = "550e8400-e29b-41d4-a716-446655440000"
	id, allow = ownerParams(tickets.Owner{ActorID: agent, AllowUnassigned: true})
	assert.True(t, id.Valid)
	assert.Equal(t, agent, db.UUIDToString(id))
	assert.True(t, allow)

	id, allow = ownerParams(tickets.Owner{ActorID: "legacy-id"})
	assert.True(t, id.Valid, "a non-UUID actor still constrains the write")
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", db.UUIDToString(id))
	assert.False(t, allow)

	assert.Equal(t,
		"($2::uuid IS NULL OR assigned_to_id = $2::uuid OR ($3::boolean AND assigned_to_id IS NULL))",
		ownerCondition(2, 3))
}
