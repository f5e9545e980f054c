package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	listCalls int
}

func newFakeJobRepo(jobs ...*domain.Job) *fakeJobRepo {
	repo := &fakeJobRepo{jobs: make(map[string]*domain.Job)}
	for _, job := range jobs {
		copied := *job
		repo.jobs[job.ID] = &copied
	}
	return repo
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) Update(_ context.Context, jobID string, patch domain.JobPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Retries != nil {
		job.Retries = *patch.Retries
	}
	return nil
}

func (r *fakeJobRepo) ListRecent(_ context.Context, _ int) ([]domain.Job, error) { return nil, nil }

func (r *fakeJobRepo) ListByStatus(_ context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []domain.Job
	for _, job := range r.jobs {
		for _, status := range statuses {
			if job.Status == status {
				out = append(out, *job)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeJobRepo) Delete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
	return nil
}

func (r *fakeJobRepo) SumCostSince(_ context.Context, _ time.Time) (float64, error) { return 0, nil }

func (r *fakeJobRepo) listByStatusCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// stubExecutor counts attempts per job and mimics the real executor's
// persistence contract: FAILED outcomes bump the job's retry counter.
type stubExecutor struct {
	mu       sync.Mutex
	attempts map[string]int
	order    []string

	repo    *fakeJobRepo
	outcome func(jobID string, attempt int) domain.JobStatus

	started chan string
	gate    chan struct{}
}

func newStubExecutor(repo *fakeJobRepo) *stubExecutor {
	return &stubExecutor{attempts: make(map[string]int), repo: repo}
}

func (s *stubExecutor) Execute(ctx context.Context, jobID string) (domain.JobStatus, error) {
	s.mu.Lock()
	s.attempts[jobID]++
	attempt := s.attempts[jobID]
	s.order = append(s.order, jobID)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- jobID
	}
	if s.gate != nil {
		<-s.gate
	}

	status := domain.JobStatusSucceeded
	if s.outcome != nil {
		status = s.outcome(jobID, attempt)
	}
	if s.repo != nil {
		patch := domain.JobPatch{Status: &status}
		if status == domain.JobStatusFailed {
			job, err := s.repo.GetByID(ctx, jobID)
			if err == nil {
				retries := job.Retries + 1
				patch.Retries = &retries
			}
		}
		_ = s.repo.Update(ctx, jobID, patch)
	}
	return status, nil
}

func (s *stubExecutor) attemptCount(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[jobID]
}

func (s *stubExecutor) totalAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *stubExecutor) executionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func pendingJobs(ids ...string) []*domain.Job {
	jobs := make([]*domain.Job, len(ids))
	for i, id := range ids {
		jobs[i] = &domain.Job{ID: id, Status: domain.JobStatusPending}
	}
	return jobs
}

func TestConcurrencyBound(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("a", "b", "c", "d", "e")...)
	exec := newStubExecutor(repo)
	exec.started = make(chan string, 8)
	exec.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{Concurrency: 2, Executor: exec, Jobs: repo, Logger: testLogger()})
	q.Start(ctx)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Add(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-exec.started:
		case <-time.After(2 * time.Second):
			t.Fatal("executions did not start")
		}
	}

	waitFor(t, time.Second, func() bool {
		pending, running := q.Stats()
		return running == 2 && pending == 3
	})

	close(exec.gate)
	waitFor(t, 2*time.Second, func() bool { return exec.totalAttempts() == 5 })
	waitFor(t, time.Second, func() bool {
		pending, running := q.Stats()
		return pending == 0 && running == 0
	})
}

func TestFIFOOrder(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("first", "second", "third")...)
	exec := newStubExecutor(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{Concurrency: 1, Executor: exec, Jobs: repo, Logger: testLogger()})
	q.Add("first")
	q.Add("second")
	q.Add("third")
	q.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return exec.totalAttempts() == 3 })

	order := exec.executionOrder()
	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestAddDeduplicates(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("a", "b")...)
	exec := newStubExecutor(repo)
	exec.started = make(chan string, 8)
	exec.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{Concurrency: 1, Executor: exec, Jobs: repo, Logger: testLogger()})
	q.Start(ctx)

	q.Add("a")
	select {
	case <-exec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first execution did not start")
	}

	q.Add("a") // already running
	q.Add("b")
	q.Add("b") // already pending

	close(exec.gate)
	waitFor(t, 2*time.Second, func() bool { return exec.totalAttempts() >= 2 })
	time.Sleep(50 * time.Millisecond)

	if got := exec.attemptCount("a"); got != 1 {
		t.Fatalf("job a ran %d times, want 1", got)
	}
	if got := exec.attemptCount("b"); got != 1 {
		t.Fatalf("job b ran %d times, want 1", got)
	}
}

func TestCancelBeforeStart(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("a", "b")...)
	exec := newStubExecutor(repo)
	exec.started = make(chan string, 8)
	exec.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{Concurrency: 1, Executor: exec, Jobs: repo, Logger: testLogger()})
	q.Start(ctx)

	q.Add("a")
	select {
	case <-exec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first execution did not start")
	}

	q.Add("b")
	q.Cancel("b")

	close(exec.gate)
	waitFor(t, 2*time.Second, func() bool { return exec.attemptCount("a") == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := exec.attemptCount("b"); got != 0 {
		t.Fatalf("cancelled job ran %d times, want 0", got)
	}
}

func TestRetryCapBoundsTotalAttempts(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("flaky")...)
	exec := newStubExecutor(repo)
	exec.outcome = func(string, int) domain.JobStatus { return domain.JobStatusFailed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{
		Concurrency: 1,
		MaxRetries:  1,
		RetryDelay:  10 * time.Millisecond,
		Executor:    exec,
		Jobs:        repo,
		Logger:      testLogger(),
	})
	q.Start(ctx)
	q.Add("flaky")

	waitFor(t, 2*time.Second, func() bool { return exec.attemptCount("flaky") == 2 })
	time.Sleep(100 * time.Millisecond)

	if got := exec.attemptCount("flaky"); got != 2 {
		t.Fatalf("attempts = %d, want exactly 2 (initial + one retry)", got)
	}

	job, _ := repo.GetByID(context.Background(), "flaky")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("final status = %s, want FAILED", job.Status)
	}
	if job.Retries != 2 {
		t.Fatalf("persisted retries = %d, want 2", job.Retries)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	repo := newFakeJobRepo(pendingJobs("recovers")...)
	exec := newStubExecutor(repo)
	exec.outcome = func(_ string, attempt int) domain.JobStatus {
		if attempt == 1 {
			return domain.JobStatusFailed
		}
		return domain.JobStatusSucceeded
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{
		Concurrency: 1,
		MaxRetries:  3,
		RetryDelay:  10 * time.Millisecond,
		Executor:    exec,
		Jobs:        repo,
		Logger:      testLogger(),
	})
	q.Start(ctx)
	q.Add("recovers")

	waitFor(t, 2*time.Second, func() bool { return exec.attemptCount("recovers") == 2 })
	time.Sleep(100 * time.Millisecond)

	if got := exec.attemptCount("recovers"); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	job, _ := repo.GetByID(context.Background(), "recovers")
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("final status = %s, want SUCCEEDED", job.Status)
	}
}

func TestResumeOnBoot(t *testing.T) {
	repo := newFakeJobRepo(
		&domain.Job{ID: "pending-1", Status: domain.JobStatusPending},
		&domain.Job{ID: "running-1", Status: domain.JobStatusRunning},
		&domain.Job{ID: "done-1", Status: domain.JobStatusSucceeded},
	)
	exec := newStubExecutor(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(Options{Concurrency: 2, Executor: exec, Jobs: repo, Logger: testLogger()})
	q.Start(ctx)
	q.ResumeOnBoot(ctx)
	q.ResumeOnBoot(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return exec.attemptCount("pending-1") == 1 && exec.attemptCount("running-1") == 1
	})
	time.Sleep(50 * time.Millisecond)

	if got := exec.attemptCount("done-1"); got != 0 {
		t.Fatalf("terminal job re-ran %d times", got)
	}
	if calls := repo.listByStatusCalls(); calls != 1 {
		t.Fatalf("recovery scan ran %d times, want 1", calls)
	}
}
