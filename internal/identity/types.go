// Package identity describes the authenticated principals acting on tickets.
package identity

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// Role is the closed set of actor roles. The zero value is not a valid role.
type Role int

const (
	// RoleAgent is a human agent working the inbox.
	RoleAgent Role = iota + 1
	// RoleAdmin may act on any ticket.
	RoleAdmin
)

// Stored/serialized role names.
const (
	roleAgentName = "AGENT"
	roleAdminName = "ADMIN"
)

// ParseRole parses a role name case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case roleAgentName:
		return RoleAgent, nil
	case roleAdminName:
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("%w: unknown role %q", errdefs.ErrInvalidArgument, raw)
	}
}

// String returns the stored role name.
func (r Role) String() string {
	switch r {
	case RoleAgent:
		return roleAgentName
	case RoleAdmin:
		return roleAdminName
	default:
		return ""
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: invalid role %d", errdefs.ErrInvalidArgument, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Actor is the authenticated principal behind an API call.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleAgent:
		return false
	default:
		return false
	}
}

// Validate checks that the actor carries an id and a known role.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: actor id required", errdefs.ErrUnauthenticated)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: actor role required", errdefs.ErrUnauthenticated)
	}
	return nil
}
