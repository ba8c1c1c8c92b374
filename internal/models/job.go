package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in Postgres.
// Transitions are monotonic: pending -> processing -> {completed | failed}.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job types accepted by the pipeline.
const (
	JobTypeArticle    = "article"
	JobTypeSocialCopy = "social_copy"
)

// JobInput is the content brief resolved before the pipeline runs.
type JobInput struct {
	Topic       string   `json:"topic"`
	Title       string   `json:"title,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	TargetWords int      `json:"target_words,omitempty"`
	ModelTier   string   `json:"model_tier,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	MediaKey    string   `json:"media_key,omitempty"`
}

// JobOutput is written once, atomically, when a job reaches a terminal state.
type JobOutput struct {
	ArtifactID     string   `json:"artifact_id"`
	Duplicate      bool     `json:"duplicate"`
	AIScoreBefore  *float64 `json:"ai_score_before,omitempty"`
	AIScoreAfter   *float64 `json:"ai_score_after,omitempty"`
	CreditsCharged int64    `json:"credits_charged"`
}

// Job is one execution instance of the content pipeline.
type Job struct {
	ID           string     `json:"id"`
	AutomationID *string    `json:"automation_id,omitempty"`
	ClientID     string     `json:"client_id"`
	Type         string     `json:"type"`
	Input        JobInput   `json:"input"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"current_step"`
	Output       *JobOutput `json:"output,omitempty"`
	Error        *string    `json:"error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
