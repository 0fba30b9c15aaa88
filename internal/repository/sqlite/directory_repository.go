package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"zen-accounts/internal/domain"
	"zen-accounts/internal/repository"
)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	revision INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// DirectoryRepository stores the user directory as one JSON row in a key/value table.
type DirectoryRepository struct {
	db  *sql.DB
	key string
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db, key: repository.DirectoryKey}
}

func (r *DirectoryRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createKVTable); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}

	empty, err := json.Marshal(domain.NewUserDirectory())
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO kv (key, value, revision, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(key) DO NOTHING`,
		r.key,
		string(empty),
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("bootstrap directory: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) Load(ctx context.Context) (*domain.UserDirectory, error) {
	var (
		value    string
		revision int64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT value, revision
FROM kv
WHERE key = ?`,
		r.key,
	).Scan(&value, &revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotInitialized
		}
		return nil, fmt.Errorf("select directory: %w", err)
	}

	var dir domain.UserDirectory
	if err := json.Unmarshal([]byte(value), &dir); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	dir.Revision = strconv.FormatInt(revision, 10)
	return &dir, nil
}

func (r *DirectoryRepository) Save(ctx context.Context, dir *domain.UserDirectory) error {
	expected, err := strconv.ParseInt(dir.Revision, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad revision %q", repository.ErrRevisionConflict, dir.Revision)
	}

	value, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE kv
SET value = ?, revision = revision + 1, updated_at = ?
WHERE key = ? AND revision = ?`,
		string(value),
		time.Now().UTC(),
		r.key,
		expected,
	)
	if err != nil {
		return fmt.Errorf("update directory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("directory rows affected: %w", err)
	}
	if affected == 0 {
		return r.missOrConflict(ctx)
	}

	dir.Revision = strconv.FormatInt(expected+1, 10)
	return nil
}

func (r *DirectoryRepository) missOrConflict(ctx context.Context) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv WHERE key = ?`, r.key).Scan(&n); err != nil {
		return fmt.Errorf("check directory: %w", err)
	}
	if n == 0 {
		return repository.ErrNotInitialized
	}
	return repository.ErrRevisionConflict
}

var _ repository.DirectoryRepository = (*DirectoryRepository)(nil)
