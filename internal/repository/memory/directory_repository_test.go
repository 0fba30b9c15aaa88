package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zen-accounts/internal/domain"
	"zen-accounts/internal/repository"
)

func TestDirectoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository()

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, repository.ErrNotInitialized)

	require.NoError(t, repo.Init(ctx))
	require.NoError(t, repo.Init(ctx))

	dir, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, dir.Users)

	dir.Add(domain.UserRecord{Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, repo.Save(ctx, dir))

	// mutating the caller's copy must not leak into the store
	dir.Users[0].PasswordHash = "changed"

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Users, 1)
	assert.Equal(t, "h", got.Users[0].PasswordHash)
	assert.Equal(t, int64(1), got.TotalCount)
}

func TestDirectoryRepository_Conflict(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository()
	require.NoError(t, repo.Init(ctx))

	a, err := repo.Load(ctx)
	require.NoError(t, err)
	b, err := repo.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, a))
	assert.ErrorIs(t, repo.Save(ctx, b), repository.ErrRevisionConflict)
}
