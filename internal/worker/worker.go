// Package worker consumes the ready queue and hands each job to the
// pipeline orchestrator under a visibility lease.
package worker

import (
	"context"
	"log/slog"
	"time"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/queue"
	"content-automation-pipeline/internal/telemetry"
)

// Executor runs one job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// JobReader is the slice of the store the reclaim pass needs.
type JobReader interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// Worker drives the consume loop.
type Worker struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	store    JobReader
	executor Executor
	logger   *slog.Logger
}

func New(cfg config.Config, q *queue.RedisQueue, st JobReader, exec Executor, logger *slog.Logger) *Worker {
	return &Worker{cfg: cfg, queue: q, store: st, executor: exec, logger: logger}
}

// Run polls until context cancellation. Each iteration promotes due
// scheduled jobs, reclaims expired leases, then consumes at most one job.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := w.queue.PromoteScheduled(ctx, time.Now(), int64(w.cfg.ScheduledBatchSize)); err != nil {
			w.logger.Warn("promote scheduled", "error", err)
		}
		w.reclaimExpired(ctx)
		if depth, err := w.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		jobID, err := w.queue.DequeueWithLease(ctx)
		if err != nil {
			w.logger.Warn("dequeue", "error", err)
			w.sleep(ctx)
			continue
		}
		if jobID == "" {
			w.sleep(ctx)
			continue
		}

		telemetry.InFlightGauge.Inc()
		if budget := w.stageBudget(); budget > w.cfg.VisibilityTimeout {
			if err := w.queue.ExtendLease(ctx, jobID, budget); err != nil {
				w.logger.Warn("extend lease", "job_id", jobID, "error", err)
			}
		}
		if err := w.executor.Execute(ctx, jobID); err != nil {
			// Infrastructure failure: the lease stays so the job is
			// reclaimed after the visibility timeout.
			w.logger.Error("execute job", "job_id", jobID, "error", err)
			telemetry.InFlightGauge.Dec()
			w.sleep(ctx)
			continue
		}
		if err := w.queue.Ack(ctx, jobID); err != nil {
			w.logger.Warn("ack job", "job_id", jobID, "error", err)
		}
		telemetry.InFlightGauge.Dec()
	}
}

// reclaimExpired sweeps leases whose deadline passed. A job still pending
// was never picked up properly and goes back to ready; one caught
// mid-processing belonged to a dead worker and is failed, since the
// pipeline runs exactly once per job.
func (w *Worker) reclaimExpired(ctx context.Context) {
	expired, err := w.queue.ExpiredLeases(ctx, time.Now(), 100)
	if err != nil {
		w.logger.Warn("scan expired leases", "error", err)
		return
	}
	for _, id := range expired {
		job, err := w.store.GetJob(ctx, id)
		if err != nil {
			w.logger.Warn("load reclaimed job", "job_id", id, "error", err)
			continue
		}
		switch job.Status {
		case models.StatusPending:
			if err := w.queue.Requeue(ctx, id); err != nil {
				w.logger.Warn("requeue reclaimed job", "job_id", id, "error", err)
			}
		case models.StatusProcessing:
			if err := w.store.MarkFailed(ctx, id, "worker lease expired"); err != nil {
				w.logger.Warn("fail reclaimed job", "job_id", id, "error", err)
				continue
			}
			telemetry.JobsFailed.Inc()
			w.logger.Warn("job failed on reclaim", "job_id", id)
		default:
			// Terminal: the worker finished but died before acking.
		}
	}
}

// stageBudget is the worst-case wall time of one pipeline run: generation,
// a scan, one revision with re-scan, and the publish fan-out.
func (w *Worker) stageBudget() time.Duration {
	return w.cfg.GenerationTimeout + 3*w.cfg.DetectionTimeout + w.cfg.PublishTimeout
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.WorkerPollInterval):
	}
}
