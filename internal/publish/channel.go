// Package publish fans one persisted artifact out to external channels.
// Channels are independent: any channel can fail without touching another
// channel's record, the artifact, or the parent job.
package publish

import (
	"context"

	"content-automation-pipeline/internal/models"
)

// Publication is the channel-agnostic input to one publish attempt.
type Publication struct {
	Artifact models.ContentArtifact
	// MediaKey optionally names an S3 object to attach (social channels).
	MediaKey string
	// ScheduleAt optionally defers the post on channels that support it.
	ScheduleAt *string
}

// Outcome is one channel's result. Validation failures (missing credentials,
// unmapped accounts) are recorded the same way as network failures.
type Outcome struct {
	Channel     string `json:"channel"`
	Status      string `json:"status"` // models.AttemptSuccess or models.AttemptFailed
	ExternalID  string `json:"external_id,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the attempt did not land.
func (o Outcome) Failed() bool {
	return o.Status != models.AttemptSuccess
}

// Channel is one publish target. Attempt never panics and never returns an
// error: every failure mode collapses into a failed Outcome so the dispatcher
// can treat all channels uniformly.
type Channel interface {
	Name() string
	Attempt(ctx context.Context, pub Publication) Outcome
}

func failure(channel, msg string) Outcome {
	return Outcome{Channel: channel, Status: models.AttemptFailed, Error: msg}
}
