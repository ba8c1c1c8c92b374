package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/queue"
)

type stubStore struct {
	jobs   map[string]models.Job
	failed map[string]string
}

func (s *stubStore) GetJob(_ context.Context, id string) (models.Job, error) {
	return s.jobs[id], nil
}

func (s *stubStore) MarkFailed(_ context.Context, id string, msg string) error {
	s.failed[id] = msg
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *queue.RedisQueue, *stubStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.Config{
		VisibilityTimeout:  time.Minute,
		WorkerPollInterval: time.Millisecond,
		ScheduledBatchSize: 100,
	}
	q := queue.NewRedisQueueWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg)
	st := &stubStore{jobs: make(map[string]models.Job), failed: make(map[string]string)}
	w := New(cfg, q, st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return w, q, st
}

func TestReclaimRequeuesPendingJob(t *testing.T) {
	ctx := context.Background()
	w, q, st := newTestWorker(t)

	st.jobs["job-1"] = models.Job{ID: "job-1", Status: models.StatusPending}
	if err := q.Enqueue(ctx, "job-1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	// Simulate an expired lease by reassigning a past deadline.
	if err := q.ExtendLease(ctx, "job-1", -2*time.Minute); err != nil {
		t.Fatalf("extend lease: %v", err)
	}

	w.reclaimExpired(ctx)

	depth, err := q.ReadyDepth(ctx)
	if err != nil || depth != 1 {
		t.Fatalf("ready depth = %d, err = %v", depth, err)
	}
	if len(st.failed) != 0 {
		t.Fatalf("pending job was failed: %v", st.failed)
	}
}

func TestReclaimFailsProcessingJob(t *testing.T) {
	ctx := context.Background()
	w, q, st := newTestWorker(t)

	st.jobs["job-2"] = models.Job{ID: "job-2", Status: models.StatusProcessing}
	if err := q.Enqueue(ctx, "job-2", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := q.ExtendLease(ctx, "job-2", -2*time.Minute); err != nil {
		t.Fatalf("extend lease: %v", err)
	}

	w.reclaimExpired(ctx)

	if msg := st.failed["job-2"]; msg != "worker lease expired" {
		t.Fatalf("fail message = %q", msg)
	}
	depth, err := q.ReadyDepth(ctx)
	if err != nil || depth != 0 {
		t.Fatalf("processing job requeued, depth = %d err = %v", depth, err)
	}
}

func TestReclaimLeavesTerminalJobAlone(t *testing.T) {
	ctx := context.Background()
	w, q, st := newTestWorker(t)

	st.jobs["job-3"] = models.Job{ID: "job-3", Status: models.StatusCompleted}
	if err := q.Enqueue(ctx, "job-3", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := q.ExtendLease(ctx, "job-3", -2*time.Minute); err != nil {
		t.Fatalf("extend lease: %v", err)
	}

	w.reclaimExpired(ctx)

	if len(st.failed) != 0 {
		t.Fatalf("terminal job touched: %v", st.failed)
	}
	depth, _ := q.ReadyDepth(ctx)
	if depth != 0 {
		t.Fatalf("terminal job requeued, depth = %d", depth)
	}
}

type countingExecutor struct {
	ids []string
}

func (c *countingExecutor) Execute(_ context.Context, jobID string) error {
	c.ids = append(c.ids, jobID)
	return nil
}

func TestRunConsumesAndAcks(t *testing.T) {
	w, q, _ := newTestWorker(t)
	exec := &countingExecutor{}
	w.executor = exec

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := q.Enqueue(ctx, "job-9", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_ = w.Run(ctx)

	if len(exec.ids) != 1 || exec.ids[0] != "job-9" {
		t.Fatalf("executed = %v", exec.ids)
	}
	expired, err := q.ExpiredLeases(context.Background(), time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("expired leases: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("job not acked: %v", expired)
	}
}
