package searchindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ehr/fhirindex/internal/domain/resource"
)

// blockingSource never yields a record; it returns once the batch is
// cancelled.
type blockingSource struct{ memSource }

func (s *blockingSource) Iterate(ctx context.Context, _ func(resource.Record) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func waitJob(t *testing.T, m *JobManager, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return job
}

func TestJobManager_Completes(t *testing.T) {
	svc := newTestService(t, NewMemoryRepo(), Options{})
	m := NewJobManager(svc, batchSource())

	job, err := m.Start(BatchOptions{Workers: 2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.ID == "" || job.Status != JobRunning {
		t.Fatalf("job = %+v", job)
	}

	done := waitJob(t, m, job.ID)
	if done.Status != JobCompleted || done.FinishedAt == nil {
		t.Fatalf("job = %+v, want completed", done)
	}
	if done.Result == nil || done.Result.Indexed != 3 || len(done.Result.Failed) != 1 {
		t.Errorf("result = %+v", done.Result)
	}
	if jobs := m.List(); len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("List = %+v", jobs)
	}
}

func TestJobManager_CancelAndSingleRun(t *testing.T) {
	svc := newTestService(t, NewMemoryRepo(), Options{})
	m := NewJobManager(svc, &blockingSource{})

	job, err := m.Start(BatchOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(BatchOptions{}); !errors.Is(err, ErrJobRunning) {
		t.Errorf("second Start error = %v, want ErrJobRunning", err)
	}

	if err := m.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	done := waitJob(t, m, job.ID)
	if done.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled", done.Status)
	}

	// Finished jobs no longer block new ones.
	next, err := m.Start(BatchOptions{})
	if err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	_ = m.Cancel(next.ID)
	waitJob(t, m, next.ID)
}

func TestJobManager_KeepsRecentFinishedJobs(t *testing.T) {
	svc := newTestService(t, NewMemoryRepo(), Options{})
	m := NewJobManager(svc, batchSource())
	m.keep = 2

	var ids []string
	for i := 0; i < 5; i++ {
		job, err := m.Start(BatchOptions{Workers: 1})
		if err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		waitJob(t, m, job.ID)
		ids = append(ids, job.ID)
	}

	jobs := m.List()
	if len(jobs) != 2 {
		t.Fatalf("List len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != ids[4] || jobs[1].ID != ids[3] {
		t.Errorf("List = %s, %s; want %s, %s", jobs[0].ID, jobs[1].ID, ids[4], ids[3])
	}
	if _, err := m.Get(ids[0]); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get(oldest) error = %v, want ErrJobNotFound", err)
	}
}

func TestJobManager_UnknownJob(t *testing.T) {
	m := NewJobManager(newTestService(t, NewMemoryRepo(), Options{}), &memSource{})

	if _, err := m.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get error = %v", err)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Cancel error = %v", err)
	}
	if _, err := m.Wait(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Wait error = %v", err)
	}
}
