package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

func TestSetRoleChangesExactlyOneUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "admin@example.com", domain.RoleAdmin)
	target := env.user(t, "target@example.com", domain.RoleAuthor)
	bystander := env.user(t, "other@example.com", domain.RoleAuthor)

	before, err := env.app.ListUsers()
	require.NoError(t, err)

	updated, err := env.app.SetRole(ctx, admin, target.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReviewer, updated.Role)

	after, err := env.app.ListUsers()
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range after {
		assert.Equal(t, before[i].ID, after[i].ID)
		if after[i].ID == target.ID {
			assert.Equal(t, domain.RoleReviewer, after[i].Role)
			continue
		}
		assert.Equal(t, before[i].Role, after[i].Role, "user %s must not change", after[i].Email)
	}

	bystanderNow, _, _ := env.store.GetUserByID(bystander.ID)
	assert.Equal(t, domain.RoleAuthor, bystanderNow.Role)
}

func TestSetRoleErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "admin@example.com", domain.RoleAdmin)
	reviewer := env.user(t, "rev@example.com", domain.RoleReviewer)
	author := env.user(t, "author@example.com", domain.RoleAuthor)

	_, err := env.app.SetRole(ctx, reviewer, author.ID, "admin")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.app.SetRole(ctx, admin, author.ID, "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = env.app.SetRole(ctx, admin, admin.ID, "author")
	assert.ErrorIs(t, err, ErrCannotChangeOwnRole)
	_, err = env.app.SetRole(ctx, admin, "missing", "author")
	assert.ErrorIs(t, err, ErrUserNotFound)

	unchanged, _, _ := env.store.GetUserByID(author.ID)
	assert.Equal(t, domain.RoleAuthor, unchanged.Role)
}
