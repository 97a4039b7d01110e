package tickets

import (
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/memohai/inboxd/internal/identity"
)

// ErrWindowExpired is returned when free-form text is sent outside the reply window.
var ErrWindowExpired = fmt.Errorf("%w: WhatsApp 24h window expired: template required", errdefs.ErrConflict)

// ErrOwnershipChanged is returned when a ticket changed hands between the check and the write.
var ErrOwnershipChanged = fmt.Errorf("%w: ticket owned by another user", errdefs.ErrPermissionDenied)

// AssignOwner is the ownership an assign by actor must still find at write time.
func AssignOwner(actor identity.Actor) Owner {
	if actor.IsAdmin() {
		return Owner{}
	}
	return Owner{ActorID: actor.ID, AllowUnassigned: true}
}

// CloseOwner is the ownership a close by actor must still find at write time.
func CloseOwner(actor identity.Actor) Owner {
	if actor.IsAdmin() {
		return Owner{}
	}
	return Owner{ActorID: actor.ID}
}

// CanAssign checks whether actor may assign ticket to targetID.
// Admins may assign or transfer any ticket. Agents may only take unassigned tickets or their own for themselves.
func CanAssign(actor identity.Actor, ticket Ticket, targetID string) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleAgent:
		if targetID != actor.ID {
			return fmt.Errorf("%w: cannot transfer ticket", errdefs.ErrPermissionDenied)
		}
		if !ticket.Unassigned() && !ticket.AssignedTo(actor.ID) {
			return fmt.Errorf("%w: ticket owned by another user", errdefs.ErrPermissionDenied)
		}
		return nil
	default:
		return unknownRole(actor)
	}
}

// CanClose checks whether actor may close ticket. Agents may close only their own tickets.
func CanClose(actor identity.Actor, ticket Ticket) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleAgent:
		if !ticket.AssignedTo(actor.ID) {
			return fmt.Errorf("%w: ticket is not assigned to you", errdefs.ErrPermissionDenied)
		}
		return nil
	default:
		return unknownRole(actor)
	}
}

// CanReply checks whether actor may send on ticket. Agents must be the current assignee.
func CanReply(actor identity.Actor, ticket Ticket) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleAgent:
		if !ticket.AssignedTo(actor.ID) {
			return fmt.Errorf("%w: you are not assigned to this ticket", errdefs.ErrPermissionDenied)
		}
		return nil
	default:
		return unknownRole(actor)
	}
}

// CanAccess checks whether actor may read ticket or reach its contact directly.
// Agents never touch a ticket owned by a peer.
func CanAccess(actor identity.Actor, ticket Ticket) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleAgent:
		if !ticket.Unassigned() && !ticket.AssignedTo(actor.ID) {
			return fmt.Errorf("%w: ticket owned by another user", errdefs.ErrPermissionDenied)
		}
		return nil
	default:
		return unknownRole(actor)
	}
}

// CheckWindow returns ErrWindowExpired unless the ticket's window is still open at now.
func CheckWindow(ticket Ticket, now time.Time) error {
	if !ticket.WindowOpen(now) {
		return ErrWindowExpired
	}
	return nil
}

func unknownRole(actor identity.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return fmt.Errorf("%w: missing actor", errdefs.ErrUnauthenticated)
	}
	return fmt.Errorf("%w: unknown role for actor %s", errdefs.ErrPermissionDenied, actor.ID)
}
