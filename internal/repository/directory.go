package repository

import (
	"context"
	"errors"

	"zen-accounts/internal/domain"
)

// DirectoryKey is the logical key under which the user directory snapshot is stored.
const DirectoryKey = "data"

var (
	// ErrNotInitialized is returned by Load when no snapshot has been bootstrapped yet.
	ErrNotInitialized = errors.New("user directory not initialized")
	// ErrRevisionConflict is returned by Save when another writer saved since the snapshot was loaded.
	ErrRevisionConflict = errors.New("user directory revision conflict")
)

// DirectoryRepository persists the whole user directory as a single snapshot.
type DirectoryRepository interface {
	// Init creates an empty directory if none exists yet. Existing data is left untouched.
	Init(ctx context.Context) error
	// Load returns the current snapshot with its Revision set.
	Load(ctx context.Context) (*domain.UserDirectory, error)
	// Save replaces the stored snapshot in one write, provided dir.Revision still
	// matches the stored revision. On success dir.Revision is advanced.
	Save(ctx context.Context, dir *domain.UserDirectory) error
}
