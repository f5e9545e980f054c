package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, type, prompt, girl_id, inputs, status, result, usage, cost_usd, error, retries, rerun_of, last_rerun_id, created_at, started_at, finished_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	inputs, err := json.Marshal(job.Inputs)
	if err != nil {
		return fmt.Errorf("marshal job inputs: %w", err)
	}
	query := `
INSERT INTO jobs (id, type, prompt, girl_id, inputs, status, retries, rerun_of, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Type,
		job.Prompt,
		nullableString(job.GirlID),
		inputs,
		job.Status,
		job.Retries,
		nullableString(job.RerunOf),
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// Update applies a partial update to a persisted job.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID string, patch domain.JobPatch) error {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Result != nil {
		result, err := json.Marshal(patch.Result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		add("result", result)
	}
	if patch.Usage != nil {
		usage, err := json.Marshal(patch.Usage)
		if err != nil {
			return fmt.Errorf("marshal job usage: %w", err)
		}
		add("usage", usage)
	}
	if patch.CostUsd != nil {
		add("cost_usd", *patch.CostUsd)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	} else if patch.ClearError {
		add("error", "")
	}
	if patch.Retries != nil {
		add("retries", *patch.Retries)
	}
	if patch.LastRerunID != nil {
		add("last_rerun_id", *patch.LastRerunID)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.FinishedAt != nil {
		add("finished_at", *patch.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, jobID)
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d;", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns the newest jobs first.
func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByStatus returns every job whose status is in the given set; it backs
// the scheduler's boot-recovery scan.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	set := make([]string, len(statuses))
	for i, status := range statuses {
		set[i] = string(status)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at;`, set)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Delete removes a job record.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SumCostSince totals the cost of succeeded jobs that finished at or after
// the given instant.
func (r *JobRepositoryPG) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	row := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(cost_usd), 0)
FROM jobs
WHERE status = $1 AND COALESCE(finished_at, created_at) >= $2;
`, domain.JobStatusSucceeded, since)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		girlID      *string
		inputs      []byte
		result      []byte
		usage       []byte
		errMsg      *string
		rerunOf     *string
		lastRerunID *string
	)
	if err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Prompt,
		&girlID,
		&inputs,
		&job.Status,
		&result,
		&usage,
		&job.CostUsd,
		&errMsg,
		&job.Retries,
		&rerunOf,
		&lastRerunID,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	); err != nil {
		return nil, err
	}

	if girlID != nil {
		job.GirlID = *girlID
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	if rerunOf != nil {
		job.RerunOf = *rerunOf
	}
	if lastRerunID != nil {
		job.LastRerunID = *lastRerunID
	}
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &job.Inputs); err != nil {
			return nil, fmt.Errorf("decode job inputs: %w", err)
		}
	}
	if len(result) > 0 {
		job.Result = &domain.JobResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	if len(usage) > 0 {
		job.Usage = &domain.JobUsage{}
		if err := json.Unmarshal(usage, job.Usage); err != nil {
			return nil, fmt.Errorf("decode job usage: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
