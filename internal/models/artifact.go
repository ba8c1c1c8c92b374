package models

import (
	"time"
)

// ContentArtifact is a finished piece of content. Rows are immutable once
// written; edits happen in external tooling, never here.
type ContentArtifact struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Client plans. Unlimited clients bypass credit checks and deductions.
const (
	PlanMetered   = "metered"
	PlanUnlimited = "unlimited"
)

// Client carries the billing plan for a content account.
type Client struct {
	ID        string    `json:"id"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
