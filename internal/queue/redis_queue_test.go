package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"content-automation-pipeline/internal/config"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, config.Config{
		VisibilityTimeout: time.Minute,
		AutomationLockTTL: time.Minute,
	})
}

func TestEnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.Enqueue(ctx, "job-1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	depth, err := q.ReadyDepth(ctx)
	if err != nil || depth != 1 {
		t.Fatalf("ready depth = %d, err = %v", depth, err)
	}

	id, err := q.DequeueWithLease(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("dequeued %q, want job-1", id)
	}

	// Queue drained, job held in-flight.
	id, err = q.DequeueWithLease(ctx)
	if err != nil || id != "" {
		t.Fatalf("expected empty dequeue, got %q err %v", id, err)
	}

	if err := q.Ack(ctx, "job-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	expired, err := q.ExpiredLeases(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("expired leases: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("acked job still leased: %v", expired)
	}
}

func TestScheduledPromotion(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	runAt := time.Now().Add(time.Hour)
	if err := q.Enqueue(ctx, "job-later", runAt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Not due yet.
	n, err := q.PromoteScheduled(ctx, time.Now(), 10)
	if err != nil || n != 0 {
		t.Fatalf("promoted %d, err %v", n, err)
	}
	if depth, _ := q.ReadyDepth(ctx); depth != 0 {
		t.Fatalf("ready depth = %d before due time", depth)
	}

	n, err = q.PromoteScheduled(ctx, runAt.Add(time.Second), 10)
	if err != nil || n != 1 {
		t.Fatalf("promoted %d, err %v", n, err)
	}
	if depth, _ := q.ReadyDepth(ctx); depth != 1 {
		t.Fatalf("ready depth = %d after promotion", depth)
	}
}

func TestExpiredLeaseReclaim(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.Enqueue(ctx, "job-1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithLease(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// Lease has not expired yet.
	ids, err := q.ExpiredLeases(ctx, time.Now(), 10)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no expired leases, got %v err %v", ids, err)
	}

	ids, err = q.ExpiredLeases(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("expired leases: %v", err)
	}
	if len(ids) != 1 || ids[0] != "job-1" {
		t.Fatalf("expected job-1 reclaimed, got %v", ids)
	}

	if err := q.Requeue(ctx, "job-1"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if depth, _ := q.ReadyDepth(ctx); depth != 1 {
		t.Fatalf("ready depth = %d after requeue", depth)
	}
}

func TestAutomationLock(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	ok, err := q.AcquireAutomationLock(ctx, "auto-1")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = q.AcquireAutomationLock(ctx, "auto-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("lock acquired twice")
	}

	if err := q.ReleaseAutomationLock(ctx, "auto-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = q.AcquireAutomationLock(ctx, "auto-1")
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}
