package repository

import (
	"context"
	"testing"

	"github.com/moltasthornblom/beam/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	u := &model.User{Username: "alice", PasswordHash: "h1", Role: "viewer"}
	require.NoError(t, repo.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	assert.ErrorIs(t, repo.Create(ctx, &model.User{Username: "alice"}), ErrUsernameTaken)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "h2"))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)

	_, err = repo.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", "x"), ErrUserNotFound)
}
