package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities. Update applies patch
// semantics; ListByStatus backs the scheduler's boot-recovery scan and must
// see committed writes.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, jobID string, patch JobPatch) error
	ListRecent(ctx context.Context, limit int) ([]Job, error)
	ListByStatus(ctx context.Context, statuses ...JobStatus) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
	SumCostSince(ctx context.Context, since time.Time) (float64, error)
}

// GirlRepository defines persistence for girls and their context assets.
type GirlRepository interface {
	Create(ctx context.Context, girl *Girl) error
	GetByID(ctx context.Context, girlID string) (*Girl, error)
	List(ctx context.Context) ([]Girl, error)
	UpdateContextAssets(ctx context.Context, girlID string, assets ContextAssets) error
	Delete(ctx context.Context, girlID string) error
}

// LibraryRepository defines persistence for stored-image metadata.
type LibraryRepository interface {
	Create(ctx context.Context, image *LibraryImage) error
	GetByID(ctx context.Context, imageID string) (*LibraryImage, error)
	List(ctx context.Context, limit int) ([]LibraryImage, error)
}

// FileCacheRepository persists provider file handles keyed by stored-image id.
// Put overwrites; concurrent refreshes of the same entry are last-writer-wins.
type FileCacheRepository interface {
	Get(ctx context.Context, imageID string) (*FileCacheEntry, error)
	Put(ctx context.Context, entry *FileCacheEntry) error
}
