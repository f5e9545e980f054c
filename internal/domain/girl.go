package domain

import "time"

// Girl is a character that owns per-slot context assets reusable across jobs.
type Girl struct {
	ID            string
	Name          string
	ContextAssets ContextAssets
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
