package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/auth"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/pkg/store"
)

// SignUp creates an identity and then assigns it the author role. When the role
// assignment fails the identity remains without a role and ErrRoleAssignmentFailed
// is returned.
func (a *App) SignUp(ctx context.Context, email, password string) (user domain.User, err error) {
	defer func() { a.metrics.SignUp(err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	_, exists, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	user = domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	if err := a.store.AssignRole(user.ID, domain.RoleAuthor); err != nil {
		util.LoggerFromContext(ctx).Error("role assignment failed after sign-up; identity left without role",
			"user_id", user.ID, "err", err)
		return domain.User{}, fmt.Errorf("%w: %v", ErrRoleAssignmentFailed, err)
	}
	user.Role = domain.RoleAuthor
	return user, nil
}

// SignIn validates credentials and issues a session token.
func (a *App) SignIn(email, password string) (user domain.User, token string, err error) {
	defer func() { a.metrics.SignIn(err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err = a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return user, token, nil
}

// SignOut invalidates the session token.
func (a *App) SignOut(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// Identity resolves a session token to the current user with a freshly looked
// up role. If the token is valid but the lookup fails, the user is returned
// with no role: authenticated, but refused by every role check.
func (a *App) Identity(ctx context.Context, token string) (domain.User, bool) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, false
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("role lookup failed; continuing without role", "user_id", uid, "err", err)
		return domain.User{ID: uid}, true
	}
	if !found {
		return domain.User{}, false
	}
	return user, true
}

// EnsureAdmin grants the admin role to an existing account. It is used at
// startup to bootstrap the first administrator.
func (a *App) EnsureAdmin(email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if user.Role == domain.RoleAdmin {
		return nil
	}
	if err := a.store.AssignRole(user.ID, domain.RoleAdmin); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	a.metrics.RoleChange(string(domain.RoleAdmin))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
