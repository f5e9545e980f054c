package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"studio/internal/costs"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers/genai"
	"studio/internal/providers/image"
)

const (
	// DefaultAspectRatio is used when a job carries none.
	DefaultAspectRatio = "1:1"
	// DefaultImageSize is the provider's resolution tier.
	DefaultImageSize = "1K"
)

// Referencer resolves stored-image ids and external URLs into provider file
// handles.
type Referencer interface {
	ResolveStoredImage(ctx context.Context, imageID string) (genai.FileHandle, error)
	ResolveURL(ctx context.Context, rawURL string) (genai.FileHandle, error)
}

// ArtifactStore persists generated bytes and returns their public URL.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options wires an Executor.
type Options struct {
	Jobs      domain.JobRepository
	Girls     domain.GirlRepository
	Refs      Referencer
	Generator image.Generator
	Store     ArtifactStore
	Now       func() time.Time
	Logger    infra.Logger
}

// Executor runs exactly one job end-to-end and leaves it in a terminal
// persisted state. It never retries internally; retry is the queue's job, and
// a retried execution starts again from scratch. Re-running a job id
// overwrites the same storage path, so replays after a crash are safe.
type Executor struct {
	jobs      domain.JobRepository
	girls     domain.GirlRepository
	refs      Referencer
	generator image.Generator
	store     ArtifactStore
	now       func() time.Time
	logger    infra.Logger
}

func New(opts Options) *Executor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		jobs:      opts.Jobs,
		girls:     opts.Girls,
		refs:      opts.Refs,
		generator: opts.Generator,
		store:     opts.Store,
		now:       now,
		logger:    opts.Logger,
	}
}

// Execute runs the job and returns its terminal status. Every pipeline error
// is absorbed into a FAILED record; a non-nil error is only returned when the
// job record itself could not be loaded or transitioned.
func (e *Executor) Execute(ctx context.Context, jobID string) (domain.JobStatus, error) {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job %s: %w", jobID, err)
	}

	if job.Status == domain.JobStatusCancelled {
		return domain.JobStatusCancelled, nil
	}

	// Transition before any slow work so observers see RUNNING promptly.
	startedAt := e.now()
	running := domain.JobStatusRunning
	if err := e.jobs.Update(ctx, jobID, domain.JobPatch{
		Status:     &running,
		StartedAt:  &startedAt,
		ClearError: true,
	}); err != nil {
		return "", fmt.Errorf("mark job %s running: %w", jobID, err)
	}

	if runErr := e.run(ctx, job); runErr != nil {
		e.logger.Error().Err(runErr).Str("job_id", jobID).Msg("executor: job failed")
		e.markFailed(ctx, job, runErr)
		return domain.JobStatusFailed, nil
	}
	return domain.JobStatusSucceeded, nil
}

func (e *Executor) run(ctx context.Context, job *domain.Job) error {
	assets := domain.EmptyContextAssets()
	if job.GirlID != "" {
		girl, err := e.girls.GetByID(ctx, job.GirlID)
		if err != nil {
			// Context is best-effort enrichment; a missing girl record only
			// drops the context slots, matching the silent-demotion rule.
			e.logger.Warn().Err(err).Str("job_id", job.ID).Str("girl_id", job.GirlID).
				Msg("executor: context assets unavailable")
		} else {
			assets = girl.ContextAssets
		}
	}

	plan := buildReferencePlan(job, assets)

	files := make([]genai.FileHandle, 0, len(plan.CombinedImageIDs)+len(job.Inputs.RefURLs))
	for _, imageID := range plan.CombinedImageIDs {
		handle, err := e.refs.ResolveStoredImage(ctx, imageID)
		if err != nil {
			return err
		}
		files = append(files, handle)
	}
	for _, rawURL := range job.Inputs.RefURLs {
		handle, err := e.refs.ResolveURL(ctx, rawURL)
		if err != nil {
			return err
		}
		files = append(files, handle)
	}

	aspectRatio := strings.TrimSpace(job.Inputs.AspectRatio)
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}

	output, err := e.generator.Generate(ctx, image.GenerateRequest{
		Files:       files,
		Prompt:      plan.Prompt,
		AspectRatio: aspectRatio,
		ImageSize:   DefaultImageSize,
		ImageOnly:   job.Inputs.ImageOnly,
		RequestID:   job.ID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	if len(output.Assets) == 0 {
		return fmt.Errorf("%w: model returned no images", domain.ErrProviderFailure)
	}

	primary := output.Assets[0]
	storagePath := artifactPath(job.ID, primary.MimeType)
	publicURL, err := e.store.Write(ctx, storagePath, primary.Data)
	if err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}

	imagesOut := len(output.Assets)
	usage := domain.JobUsage{
		ImagesOut:    imagesOut,
		OutputTokens: imagesOut * costs.TokensPerImage,
	}
	costUsd := costs.Estimate(imagesOut, 0, 0)

	finishedAt := e.now()
	succeeded := domain.JobStatusSucceeded
	if err := e.jobs.Update(ctx, job.ID, domain.JobPatch{
		Status:     &succeeded,
		FinishedAt: &finishedAt,
		Result: &domain.JobResult{
			StoragePath:     storagePath,
			PublicURL:       publicURL,
			Note:            output.Text,
			PromptApplied:   plan.Prompt,
			ContextSnapshot: plan.Snapshot,
		},
		Usage:   &usage,
		CostUsd: &costUsd,
	}); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Int("images_out", imagesOut).
		Float64("cost_usd", costUsd).
		Msg("executor: job succeeded")
	return nil
}

// markFailed records the terminal FAILED state. The retry counter increments
// on every failed attempt; the queue reads it back to decide on re-enqueueing.
func (e *Executor) markFailed(ctx context.Context, job *domain.Job, cause error) {
	failed := domain.JobStatusFailed
	finishedAt := e.now()
	message := cause.Error()
	retries := job.Retries + 1
	if err := e.jobs.Update(ctx, job.ID, domain.JobPatch{
		Status:     &failed,
		FinishedAt: &finishedAt,
		Error:      &message,
		Retries:    &retries,
	}); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: persist failure state failed")
	}
}

func artifactPath(jobID, mimeType string) string {
	ext := "jpg"
	switch {
	case strings.Contains(mimeType, "png"):
		ext = "png"
	case strings.Contains(mimeType, "webp"):
		ext = "webp"
	}
	return fmt.Sprintf("generations/%s.%s", jobID, ext)
}
