package tickets

import (
	"strings"

	"github.com/memohai/inboxd/internal/identity"
)

// Queue is a named worklist over the active tickets.
type Queue string

const (
	// QueueMine lists tickets assigned to the actor.
	QueueMine Queue = "meus"
	// QueueWaiting lists unassigned tickets.
	QueueWaiting Queue = "espera"
	// QueueAll lists every active ticket the actor may see.
	QueueAll Queue = "todos"
)

// ParseQueue normalizes a queue name; unknown values fall back to QueueMine.
func ParseQueue(raw string) Queue {
	switch Queue(strings.ToLower(strings.TrimSpace(raw))) {
	case QueueWaiting:
		return QueueWaiting
	case QueueAll:
		return QueueAll
	default:
		return QueueMine
	}
}

// Scope selects active tickets by assignee.
type Scope int

const (
	ScopeAssignedTo Scope = iota
	ScopeUnassigned
	ScopeAssignedToOrUnassigned
	ScopeAllActive
)

// Filter is the store-level selection for a queue page. Only OPEN and PENDING tickets match.
type Filter struct {
	Scope   Scope
	ActorID string
	Take    int
	Skip    int
}

// FilterFor resolves which active tickets queue shows to actor.
func FilterFor(queue Queue, actor identity.Actor) Filter {
	switch queue {
	case QueueWaiting:
		return Filter{Scope: ScopeUnassigned}
	case QueueAll:
		switch actor.Role {
		case identity.RoleAdmin:
			return Filter{Scope: ScopeAllActive}
		case identity.RoleAgent:
			return Filter{Scope: ScopeAssignedToOrUnassigned, ActorID: actor.ID}
		default:
			return Filter{Scope: ScopeAssignedTo, ActorID: actor.ID}
		}
	default:
		return Filter{Scope: ScopeAssignedTo, ActorID: actor.ID}
	}
}

// Matches reports whether t belongs to the filter, ignoring paging.
func (f Filter) Matches(t Ticket) bool {
	if !t.Status.Active() {
		return false
	}
	switch f.Scope {
	case ScopeAssignedTo:
		return t.AssignedTo(f.ActorID)
	case ScopeUnassigned:
		return t.Unassigned()
	case ScopeAssignedToOrUnassigned:
		return t.Unassigned() || t.AssignedTo(f.ActorID)
	case ScopeAllActive:
		return true
	default:
		return false
	}
}
