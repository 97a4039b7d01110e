// Package accounts provides agent/admin account and credential management.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/crypto/bcrypt"

	"github.com/memohai/inboxd/internal/identity"
)

// Errors returned by account operations.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", errdefs.ErrUnauthenticated)
	ErrInactiveAccount    = fmt.Errorf("%w: account is inactive", errdefs.ErrPermissionDenied)
)

// Service provides account management for agents.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new accounts service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "accounts")),
		now:    time.Now,
	}
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	if strings.TrimSpace(id) == "" {
		return Account{}, fmt.Errorf("%w: account id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.GetAccount(ctx, id)
}

// Login authenticates by username and password.
func (s *Service) Login(ctx context.Context, username, password string) (Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return Account{}, ErrInvalidCredentials
	}
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, ErrInactiveAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if err := s.store.TouchAccountLogin(ctx, account.ID, s.now()); err != nil {
		s.logger.Warn("touch last login failed", slog.String("account_id", account.ID), slog.Any("error", err))
	}
	return account, nil
}

// IsAdmin checks if the account has the admin role.
func (s *Service) IsAdmin(ctx context.Context, id string) (bool, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Actor().IsAdmin(), nil
}

// Count returns the number of accounts.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountAccounts(ctx)
}

// Create creates a new account. Role defaults to AGENT.
func (s *Service) Create(ctx context.Context, req CreateAccountRequest) (Account, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return Account{}, fmt.Errorf("%w: username is required", errdefs.ErrInvalidArgument)
	}
	password := strings.TrimSpace(req.Password)
	if password == "" {
		return Account{}, fmt.Errorf("%w: password is required", errdefs.ErrInvalidArgument)
	}
	role := identity.RoleAgent
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := identity.ParseRole(req.Role)
		if err != nil {
			return Account{}, err
		}
		role = parsed
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	return s.store.CreateAccount(ctx, CreateParams{
		Username:     username,
		PasswordHash: string(hashed),
		DisplayName:  displayName,
		Role:         role,
		IsActive:     true,
	})
}

// EnsureAdmin creates the bootstrap admin when no account exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password, displayName string) (bool, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.Create(ctx, CreateAccountRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
		Role:        identity.RoleAdmin.String(),
	}); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", slog.String("username", username))
	return true, nil
}
