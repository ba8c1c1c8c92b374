package publish

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/telemetry"
)

// AttemptRecorder persists one immutable row per channel outcome.
type AttemptRecorder interface {
	CreatePublishAttempt(ctx context.Context, a models.PublishAttempt) (models.PublishAttempt, error)
}

// Dispatcher fans one artifact out to the named channels. Every channel is
// attempted regardless of the others' outcomes; the aggregate result never
// decides the parent job's fate.
type Dispatcher struct {
	channels map[string]Channel
	recorder AttemptRecorder
	logger   *slog.Logger
	timeout  time.Duration
}

func NewDispatcher(recorder AttemptRecorder, logger *slog.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		channels: byName,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Dispatch attempts every named channel and returns outcomes in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, artifact models.ContentArtifact, jobID string, names []string, mediaKey string) []Outcome {
	outcomes := make([]Outcome, len(names))

	g := &errgroup.Group{}
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			outcomes[i] = d.attemptOne(ctx, artifact, jobID, name, mediaKey)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in outcomes

	return outcomes
}

func (d *Dispatcher) attemptOne(ctx context.Context, artifact models.ContentArtifact, jobID, name, mediaKey string) Outcome {
	ch, ok := d.channels[name]
	var outcome Outcome
	if !ok {
		outcome = failure(name, "unknown publish channel")
	} else {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		outcome = ch.Attempt(attemptCtx, Publication{Artifact: artifact, MediaKey: mediaKey})
		cancel()
	}

	telemetry.PublishAttempts.WithLabelValues(name, outcome.Status).Inc()
	if outcome.Failed() {
		d.logger.Warn("publish channel failed",
			"channel", name, "job_id", jobID, "artifact_id", artifact.ID, "error", outcome.Error)
	}

	attempt := models.PublishAttempt{
		ArtifactID: artifact.ID,
		JobID:      jobID,
		Channel:    name,
		Status:     outcome.Status,
	}
	if outcome.ExternalID != "" {
		attempt.ExternalID = &outcome.ExternalID
	}
	if outcome.ExternalURL != "" {
		attempt.ExternalURL = &outcome.ExternalURL
	}
	if outcome.Error != "" {
		attempt.Error = &outcome.Error
	}
	if _, err := d.recorder.CreatePublishAttempt(ctx, attempt); err != nil {
		// The publish already happened (or failed) externally; losing the
		// record must not cascade into the job.
		d.logger.Error("record publish attempt", "channel", name, "job_id", jobID, "error", err)
	}
	return outcome
}
