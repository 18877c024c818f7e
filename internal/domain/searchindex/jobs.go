package searchindex

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirindex/internal/domain/resource"
)

// JobStatus is the lifecycle state of an asynchronous reindex.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is an asynchronous full reindex.
type Job struct {
	ID         string       `json:"id"`
	Status     JobStatus    `json:"status"`
	Options    BatchOptions `json:"options"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Result     *BatchResult `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// finishedJobsKept bounds how many finished jobs stay listed.
const finishedJobsKept = 20

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// JobManager runs full reindexes in the background, at most one at a time.
type JobManager struct {
	svc *Service
	src resource.Source

	mu   sync.Mutex
	jobs map[string]*jobEntry
	keep int
}

func NewJobManager(svc *Service, src resource.Source) *JobManager {
	return &JobManager{svc: svc, src: src, jobs: make(map[string]*jobEntry), keep: finishedJobsKept}
}

// Start launches a reindex detached from the caller's context.
func (m *JobManager) Start(opts BatchOptions) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.jobs {
		if e.job.Status == JobRunning {
			return nil, ErrJobRunning
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &jobEntry{
		job: Job{
			ID:        uuid.New().String(),
			Status:    JobRunning,
			Options:   opts,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.jobs[e.job.ID] = e

	go m.run(ctx, e)

	job := e.job
	return &job, nil
}

func (m *JobManager) run(ctx context.Context, e *jobEntry) {
	defer close(e.done)
	defer e.cancel()

	result, err := m.svc.ReindexAll(ctx, m.src, e.job.Options)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	e.job.FinishedAt = &now
	e.job.Result = result
	switch {
	case result != nil && result.Cancelled:
		e.job.Status = JobCancelled
	case err != nil:
		e.job.Status = JobFailed
		e.job.Error = err.Error()
	default:
		e.job.Status = JobCompleted
	}
	m.pruneLocked()
}

// pruneLocked drops the oldest finished jobs beyond m.keep. m.mu must be held.
func (m *JobManager) pruneLocked() {
	finished := make([]*jobEntry, 0, len(m.jobs))
	for _, e := range m.jobs {
		if e.job.FinishedAt != nil {
			finished = append(finished, e)
		}
	}
	if len(finished) <= m.keep {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].job.FinishedAt.After(*finished[j].job.FinishedAt)
	})
	for _, e := range finished[m.keep:] {
		delete(m.jobs, e.job.ID)
	}
}

// Get returns a snapshot of a job.
func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job := e.job
	return &job, nil
}

// List returns every known job, most recent first.
func (m *JobManager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cancel stops a running job. Cancelling a finished job is a no-op.
func (m *JobManager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	e.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *JobManager) Wait(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	select {
	case <-e.done:
		return m.Get(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
