package accounts

import (
	"context"
	"time"

	"github.com/memohai/inboxd/internal/identity"
)

// Account is an agent or admin able to log in to the inbox.
type Account struct {
	ID           string        `json:"id"`
	Username     string        `json:"username"`
	DisplayName  string        `json:"name"`
	Role         identity.Role `json:"role"`
	IsActive     bool          `json:"isActive"`
	PasswordHash string        `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	LastLoginAt  *time.Time    `json:"lastLoginAt,omitempty"`
}

// Actor returns the principal carried in tokens for this account.
func (a Account) Actor() identity.Actor {
	return identity.Actor{ID: a.ID, Role: a.Role}
}

// CreateAccountRequest is the input for creating an account.
type CreateAccountRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// CreateParams is the store-level input; the password is already hashed.
type CreateParams struct {
	Username     string
	PasswordHash string
	DisplayName  string
	Role         identity.Role
	IsActive     bool
}

// Store persists accounts. Lookups return errdefs.ErrNotFound when absent and
// CreateAccount returns errdefs.ErrAlreadyExists for a taken username.
type Store interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	CreateAccount(ctx context.Context, params CreateParams) (Account, error)
	CountAccounts(ctx context.Context) (int, error)
	TouchAccountLogin(ctx context.Context, id string, at time.Time) error
}
