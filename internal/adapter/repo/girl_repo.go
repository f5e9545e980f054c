package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// GirlRepositoryPG implements domain.GirlRepository.
type GirlRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGirlRepository creates a new girl repository backed by PostgreSQL.
func NewGirlRepository(pool *pgxpool.Pool) *GirlRepositoryPG {
	return &GirlRepositoryPG{pool: pool}
}

// Create inserts a new girl record.
func (r *GirlRepositoryPG) Create(ctx context.Context, girl *domain.Girl) error {
	assets, err := json.Marshal(domain.NormalizeContextAssets(girl.ContextAssets))
	if err != nil {
		return fmt.Errorf("marshal context assets: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO girls (id, name, context_assets, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4);
`, girl.ID, girl.Name, assets, girl.CreatedAt)
	return err
}

// GetByID fetches a girl with her context assets normalized.
func (r *GirlRepositoryPG) GetByID(ctx context.Context, girlID string) (*domain.Girl, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, context_assets, created_at, updated_at
FROM girls
WHERE id = $1;
`, girlID)
	girl, err := scanGirl(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return girl, nil
}

// List returns all girls, newest first.
func (r *GirlRepositoryPG) List(ctx context.Context) ([]domain.Girl, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, context_assets, created_at, updated_at
FROM girls
ORDER BY created_at DESC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var girls []domain.Girl
	for rows.Next() {
		girl, err := scanGirl(rows)
		if err != nil {
			return nil, err
		}
		girls = append(girls, *girl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return girls, nil
}

// UpdateContextAssets replaces a girl's context-asset map.
func (r *GirlRepositoryPG) UpdateContextAssets(ctx context.Context, girlID string, assets domain.ContextAssets) error {
	payload, err := json.Marshal(domain.NormalizeContextAssets(assets))
	if err != nil {
		return fmt.Errorf("marshal context assets: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE girls SET context_assets = $2, updated_at = NOW() WHERE id = $1;
`, girlID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a girl record.
func (r *GirlRepositoryPG) Delete(ctx context.Context, girlID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM girls WHERE id = $1;`, girlID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanGirl(row pgx.Row) (*domain.Girl, error) {
	var (
		girl   domain.Girl
		assets []byte
	)
	if err := row.Scan(&girl.ID, &girl.Name, &assets, &girl.CreatedAt, &girl.UpdatedAt); err != nil {
		return nil, err
	}
	raw := domain.ContextAssets{}
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &raw); err != nil {
			return nil, fmt.Errorf("decode context assets: %w", err)
		}
	}
	girl.ContextAssets = domain.NormalizeContextAssets(raw)
	return &girl, nil
}
