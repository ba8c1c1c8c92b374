package models

import (
	"time"
)

// Publish attempt outcomes.
const (
	AttemptSuccess = "success"
	AttemptFailed  = "failed"
)

// PublishAttempt records one channel's outcome for one artifact. Rows are
// immutable; a later retry produces a new row rather than rewriting this one,
// so outcomes across channels stay independent.
type PublishAttempt struct {
	ID          string    `json:"id"`
	ArtifactID  string    `json:"artifact_id"`
	JobID       string    `json:"job_id"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	ExternalID  *string   `json:"external_id,omitempty"`
	ExternalURL *string   `json:"external_url,omitempty"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
