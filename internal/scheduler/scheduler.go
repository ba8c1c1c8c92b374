// Package scheduler turns due automations into pending jobs. Each tick is
// idempotent per automation: an advisory Redis lock keeps overlapping ticks
// from double-firing the same row.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/schedule"
	"content-automation-pipeline/internal/store"
	"content-automation-pipeline/internal/telemetry"
)

// Store is the persistence slice the scheduler drives.
type Store interface {
	ListDueAutomations(ctx context.Context, now time.Time) ([]models.Automation, error)
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
	UpdateNextRun(ctx context.Context, id string, nextRun time.Time) error
}

// Queue covers enqueueing and the per-automation advisory lock.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, runAt time.Time) error
	AcquireAutomationLock(ctx context.Context, automationID string) (bool, error)
	ReleaseAutomationLock(ctx context.Context, automationID string) error
}

// Service dispatches due automations.
type Service struct {
	store  Store
	queue  Queue
	logger *slog.Logger
}

func New(st Store, q Queue, logger *slog.Logger) *Service {
	return &Service{store: st, queue: q, logger: logger}
}

// Tick fires every automation due at the given instant. One bad automation
// never blocks the rest; its error is logged and the row is retried on the
// next tick because next_run_at only advances after a successful dispatch.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListDueAutomations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due automations: %w", err)
	}

	dispatched := 0
	for _, a := range due {
		ok, err := s.queue.AcquireAutomationLock(ctx, a.ID)
		if err != nil {
			s.logger.Warn("acquire automation lock", "automation_id", a.ID, "error", err)
			continue
		}
		if !ok {
			// Another tick owns this automation right now.
			continue
		}
		if err := s.dispatch(ctx, a, now); err != nil {
			s.logger.Warn("dispatch automation", "automation_id", a.ID, "error", err)
		} else {
			dispatched++
		}
		if err := s.queue.ReleaseAutomationLock(ctx, a.ID); err != nil {
			s.logger.Warn("release automation lock", "automation_id", a.ID, "error", err)
		}
	}
	return dispatched, nil
}

func (s *Service) dispatch(ctx context.Context, a models.Automation, now time.Time) error {
	// Compute the next fire time first so a broken recurrence config never
	// produces a job that would re-fire forever.
	next, err := schedule.NextRun(a.Frequency, schedule.Params{
		DayOfWeek:  a.DayOfWeek,
		DayOfMonth: a.DayOfMonth,
		TimeOfDay:  a.TimeOfDay,
	}, now)
	if err != nil {
		return fmt.Errorf("compute next run: %w", err)
	}

	jobType := a.ContentType
	if jobType == "" {
		jobType = models.JobTypeArticle
	}
	job, err := s.store.CreateJob(ctx, store.CreateJobParams{
		AutomationID: &a.ID,
		ClientID:     a.ClientID,
		Type:         jobType,
		Input:        a.Brief(),
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.ID, now); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	if err := s.store.UpdateNextRun(ctx, a.ID, next); err != nil {
		return fmt.Errorf("persist next run: %w", err)
	}

	telemetry.JobsDispatched.Inc()
	s.logger.Info("automation dispatched",
		"automation_id", a.ID, "job_id", job.ID, "next_run_at", next.Format(time.RFC3339))
	return nil
}
