package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// LibraryRepositoryPG implements domain.LibraryRepository.
type LibraryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLibraryRepository creates a new stored-image metadata repository.
func NewLibraryRepository(pool *pgxpool.Pool) *LibraryRepositoryPG {
	return &LibraryRepositoryPG{pool: pool}
}

// Create inserts a stored-image metadata record.
func (r *LibraryRepositoryPG) Create(ctx context.Context, image *domain.LibraryImage) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO library_images (id, filename, storage_path, mime_type, girl_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`, image.ID, image.Filename, image.StoragePath, image.MimeType, nullableString(image.GirlID), image.CreatedAt)
	return err
}

// GetByID fetches a stored-image record.
func (r *LibraryRepositoryPG) GetByID(ctx context.Context, imageID string) (*domain.LibraryImage, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, filename, storage_path, mime_type, girl_id, created_at
FROM library_images
WHERE id = $1;
`, imageID)
	image, err := scanLibraryImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return image, nil
}

// List returns stored-image records, newest first.
func (r *LibraryRepositoryPG) List(ctx context.Context, limit int) ([]domain.LibraryImage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, filename, storage_path, mime_type, girl_id, created_at
FROM library_images
ORDER BY created_at DESC
LIMIT $1;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.LibraryImage
	for rows.Next() {
		image, err := scanLibraryImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *image)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func scanLibraryImage(row pgx.Row) (*domain.LibraryImage, error) {
	var (
		image  domain.LibraryImage
		girlID *string
	)
	if err := row.Scan(&image.ID, &image.Filename, &image.StoragePath, &image.MimeType, &girlID, &image.CreatedAt); err != nil {
		return nil, err
	}
	if girlID != nil {
		image.GirlID = *girlID
	}
	return &image, nil
}
