package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// FileCacheRepositoryPG implements domain.FileCacheRepository. Entries map a
// stored-image id to its provider file handle; stale rows are harmless since
// readers check the expiry.
type FileCacheRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewFileCacheRepository creates a new file-handle cache repository.
func NewFileCacheRepository(pool *pgxpool.Pool) *FileCacheRepositoryPG {
	return &FileCacheRepositoryPG{pool: pool}
}

// Get fetches the cache entry for a stored image.
func (r *FileCacheRepositoryPG) Get(ctx context.Context, imageID string) (*domain.FileCacheEntry, error) {
	row := r.pool.QueryRow(ctx, `
SELECT image_id, file_uri, mime_type, expires_at, updated_at
FROM files_cache
WHERE image_id = $1;
`, imageID)
	var entry domain.FileCacheEntry
	if err := row.Scan(&entry.ImageID, &entry.FileURI, &entry.MimeType, &entry.ExpiresAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Put upserts a cache entry; last writer wins on concurrent refreshes.
func (r *FileCacheRepositoryPG) Put(ctx context.Context, entry *domain.FileCacheEntry) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO files_cache (image_id, file_uri, mime_type, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (image_id) DO UPDATE
SET file_uri = EXCLUDED.file_uri,
    mime_type = EXCLUDED.mime_type,
    expires_at = EXCLUDED.expires_at,
    updated_at = EXCLUDED.updated_at;
`, entry.ImageID, entry.FileURI, entry.MimeType, entry.ExpiresAt, entry.UpdatedAt)
	return err
}
