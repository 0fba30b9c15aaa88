package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"zen-accounts/internal/domain"
	"zen-accounts/internal/repository"
)

// DirectoryRepository keeps the serialized snapshot in process memory.
// Snapshots are stored encoded so callers never share slices with the store.
type DirectoryRepository struct {
	mu       sync.Mutex
	data     []byte
	revision int64
}

func NewDirectoryRepository() *DirectoryRepository {
	return &DirectoryRepository{}
}

func (r *DirectoryRepository) Init(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data != nil {
		return nil
	}
	data, err := json.Marshal(domain.NewUserDirectory())
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	r.data = data
	r.revision = 1
	return nil
}

func (r *DirectoryRepository) Load(_ context.Context) (*domain.UserDirectory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return nil, repository.ErrNotInitialized
	}
	var dir domain.UserDirectory
	if err := json.Unmarshal(r.data, &dir); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	dir.Revision = strconv.FormatInt(r.revision, 10)
	return &dir, nil
}

func (r *DirectoryRepository) Save(_ context.Context, dir *domain.UserDirectory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return repository.ErrNotInitialized
	}
	if dir.Revision != strconv.FormatInt(r.revision, 10) {
		return repository.ErrRevisionConflict
	}
	data, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	r.data = data
	r.revision++
	dir.Revision = strconv.FormatInt(r.revision, 10)
	return nil
}

var _ repository.DirectoryRepository = (*DirectoryRepository)(nil)
