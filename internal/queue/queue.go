package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

// Executor runs one job to a terminal persisted state.
type Executor interface {
	Execute(ctx context.Context, jobID string) (domain.JobStatus, error)
}

// Options wires a Queue.
type Options struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	Executor    Executor
	Jobs        domain.JobRepository
	Logger      infra.Logger
}

// Queue owns job admission and lifecycle orchestration: FIFO pending order, a
// bounded set of in-flight executions, retry-on-failure up to a cap, and boot
// recovery of jobs orphaned by a crash. It is the only component that moves a
// job into or out of execution. Construct one per process and pass it
// explicitly to anything that enqueues.
type Queue struct {
	concurrency int
	maxRetries  int
	retryDelay  time.Duration
	exec        Executor
	jobs        domain.JobRepository
	logger      infra.Logger

	mu           sync.Mutex
	pending      []string
	running      map[string]struct{}
	bootstrapped bool

	// wake is a one-slot signal drained by the scheduler loop, so a burst of
	// admissions coalesces into a single scheduling pass.
	wake chan struct{}
}

// New constructs a stopped Queue; call Start to launch the scheduler loop.
func New(opts Options) *Queue {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 2
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &Queue{
		concurrency: concurrency,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		exec:        opts.Executor,
		jobs:        opts.Jobs,
		logger:      opts.Logger,
		running:     make(map[string]struct{}),
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop. Executions inherit ctx; cancelling it
// stops the loop and lets in-flight executions wind down on their own.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				q.fill(ctx)
			}
		}
	}()
}

// Add inserts jobID at the tail of the pending list unless it is already
// pending or running, then triggers a scheduling pass. Safe to call from any
// goroutine.
func (q *Queue) Add(jobID string) {
	if jobID == "" {
		return
	}
	q.mu.Lock()
	if _, active := q.running[jobID]; active || slices.Contains(q.pending, jobID) {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, jobID)
	q.mu.Unlock()
	q.kick()
}

// Cancel removes jobID from the pending list. A job that is already running
// keeps running; cancellation only prevents future (re)execution, and the
// caller separately persists the CANCELLED status.
func (q *Queue) Cancel(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.pending {
		if id == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// ResumeOnBoot scans the store once for PENDING and RUNNING jobs and enqueues
// them, recovering work orphaned by a prior crash. A RUNNING job found here is
// re-played from scratch; execution overwrites prior partial results. Guarded
// to run exactly once per process; scan failures are logged and do not affect
// later Add calls.
func (q *Queue) ResumeOnBoot(ctx context.Context) {
	q.mu.Lock()
	if q.bootstrapped {
		q.mu.Unlock()
		return
	}
	q.bootstrapped = true
	q.mu.Unlock()

	jobs, err := q.jobs.ListByStatus(ctx, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		q.logger.Error().Err(err).Msg("queue: boot recovery scan failed")
		return
	}
	for i := range jobs {
		q.Add(jobs[i].ID)
	}
	if len(jobs) > 0 {
		q.logger.Info().Int("jobs", len(jobs)).Msg("queue: resumed unfinished jobs")
	}
}

// Stats reports the current pending and running counts.
func (q *Queue) Stats() (pending, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.running)
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// fill is the scheduling pass: pop pending heads into the running set until
// the concurrency limit is reached, launching one goroutine per admission.
func (q *Queue) fill(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.running) < q.concurrency && len(q.pending) > 0 {
		jobID := q.pending[0]
		q.pending = q.pending[1:]
		q.running[jobID] = struct{}{}
		go q.runOne(ctx, jobID)
	}
}

func (q *Queue) runOne(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("job_id", jobID).Msg("queue: execution panicked")
		}
		q.mu.Lock()
		delete(q.running, jobID)
		q.mu.Unlock()
		q.kick()
	}()

	status, err := q.exec.Execute(ctx, jobID)
	if err != nil {
		q.logger.Error().Err(err).Str("job_id", jobID).Msg("queue: execution error")
		return
	}

	if status == domain.JobStatusFailed {
		q.maybeRetry(ctx, jobID)
	}
}

// maybeRetry re-enqueues a failed job after a short delay while its persisted
// retry count is within the cap. Beyond the cap the job stays FAILED until a
// client rerun creates a fresh job id with a fresh retry budget.
func (q *Queue) maybeRetry(ctx context.Context, jobID string) {
	job, err := q.jobs.GetByID(ctx, jobID)
	if err != nil {
		q.logger.Error().Err(err).Str("job_id", jobID).Msg("queue: retry check failed")
		return
	}
	if job.Retries > q.maxRetries {
		q.logger.Warn().Str("job_id", jobID).Int("retries", job.Retries).Msg("queue: retry budget exhausted")
		return
	}
	q.logger.Info().Str("job_id", jobID).Int("retries", job.Retries).Msg("queue: re-enqueueing failed job")
	time.AfterFunc(q.retryDelay, func() { q.Add(jobID) })
}
