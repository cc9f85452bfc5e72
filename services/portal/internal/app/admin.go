package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/pkg/store"
)

// ListUsers returns all users (admin use only).
func (a *App) ListUsers() ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetRole assigns role to userID on behalf of admin and returns the updated
// user. Only that user's record changes. Admins cannot change their own role,
// which keeps at least one admin in place.
func (a *App) SetRole(ctx context.Context, admin domain.User, userID, role string) (domain.User, error) {
	if !admin.HasRole(domain.RoleAdmin) {
		return domain.User{}, ErrForbidden
	}
	newRole, ok := domain.ParseRole(role)
	if !ok {
		return domain.User{}, ErrInvalidRole
	}
	userID = strings.TrimSpace(userID)
	if userID == admin.ID {
		return domain.User{}, ErrCannotChangeOwnRole
	}
	if err := a.store.AssignRole(userID, newRole); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("assign role: %w", err)
	}
	a.metrics.RoleChange(string(newRole))
	util.LoggerFromContext(ctx).Info("role changed", "user_id", userID, "role", newRole, "admin_id", admin.ID)

	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}
