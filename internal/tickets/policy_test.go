package tickets

import (
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"

	"github.com/memohai/inboxd/internal/identity"
)

var (
	admin  = identity.Actor{ID: "admin", Role: identity.RoleAdmin}
	agent1 = identity.Actor{ID: "u1", Role: identity.RoleAgent}
	agent2 = identity.Actor{ID: "u2", Role: identity.RoleAgent}
)

func ownedBy(id string) Ticket {
	t := Ticket{ID: "t1", Status: StatusOpen}
	if id != "" {
		t.AssignedToID = &id
	}
	return t
}

func TestCanAssign(t *testing.T) {
	cases := []struct {
		name   string
		actor  identity.Actor
		ticket Ticket
		target string
		allow  bool
	}{
		{"agent takes unassigned", agent1, ownedBy(""), "u1", true},
		{"agent keeps own", agent1, ownedBy("u1"), "u1", true},
		{"agent takes peer ticket", agent1, ownedBy("u2"), "u1", false},
		{"agent transfers own", agent1, ownedBy("u1"), "u2", false},
		{"agent assigns unassigned to peer", agent1, ownedBy(""), "u2", false},
		{"admin transfers", admin, ownedBy("u1"), "u2", true},
		{"admin takes unassigned", admin, ownedBy(""), "admin", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanAssign(tc.actor, tc.ticket, tc.target)
			if tc.allow {
				assert.NoError(t, err)
			} else {
				assert.True(t, errdefs.IsPermissionDenied(err), "got %v", err)
			}
		})
	}
}

func TestCanCloseAndReply(t *testing.T) {
	assert.NoError(t, CanClose(agent1, ownedBy("u1")))
	assert.True(t, errdefs.IsPermissionDenied(CanClose(agent1, ownedBy(""))))
	assert.True(t, errdefs.IsPermissionDenied(CanClose(agent2, ownedBy("u1"))))
	assert.NoError(t, CanClose(admin, ownedBy("")))

	assert.NoError(t, CanReply(agent1, ownedBy("u1")))
	assert.True(t, errdefs.IsPermissionDenied(CanReply(agent2, ownedBy("u1"))))
	assert.True(t, errdefs.IsPermissionDenied(CanReply(agent1, ownedBy(""))))
	assert.NoError(t, CanReply(admin, ownedBy("u2")))
}

func TestCanAccess(t *testing.T) {
	assert.NoError(t, CanAccess(agent1, ownedBy("")))
	assert.NoError(t, CanAccess(agent1, ownedBy("u1")))
	assert.True(t, errdefs.IsPermissionDenied(CanAccess(agent2, ownedBy("u1"))))
	assert.NoError(t, CanAccess(admin, ownedBy("u1")))
}

func TestUnknownRole(t *testing.T) {
	assert.True(t, errdefs.IsUnauthorized(CanReply(identity.Actor{}, ownedBy(""))))
	assert.True(t, errdefs.IsPermissionDenied(CanReply(identity.Actor{ID: "x"}, ownedBy("x"))))
}

func TestCheckWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	open := now.Add(time.Minute)
	closed := now.Add(-time.Minute)

	assert.NoError(t, CheckWindow(Ticket{WaWindowUntil: &open}, now))

	err := CheckWindow(Ticket{WaWindowUntil: &closed}, now)
	assert.ErrorIs(t, err, ErrWindowExpired)
	assert.True(t, errdefs.IsConflict(err))

	assert.ErrorIs(t, CheckWindow(Ticket{WaWindowUntil: &now}, now), ErrWindowExpired)
	assert.ErrorIs(t, CheckWindow(Ticket{}, now), ErrWindowExpired)
}

func TestWriteOwnership(t *testing.T) {
	take := AssignOwner(agent1)
	assert.True(t, take.Matches(ownedBy("")))
	assert.True(t, take.Matches(ownedBy("u1")))
	assert.False(t, take.Matches(ownedBy("u2")))

	closing := CloseOwner(agent1)
	assert.True(t, closing.Matches(ownedBy("u1")))
	assert.False(t, closing.Matches(ownedBy("")))
	assert.False(t, closing.Matches(ownedBy("u2")))

	assert.Equal(t, Owner{}, AssignOwner(admin))
	assert.Equal(t, Owner{}, CloseOwner(admin))
	assert.True(t, Owner{}.Matches(ownedBy("u2")))

	assert.True(t, errdefs.IsPermissionDenied(ErrOwnershipChanged))
}
