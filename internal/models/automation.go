package models

import (
	"time"
)

// Frequency values supported by the recurrence scheduler.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqThrice  = "3x_week"
	FreqMonthly = "monthly"
)

// Automation is a persisted recurring configuration. The scheduler mutates
// only NextRunAt; everything else is owned by external admin tooling.
type Automation struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	Frequency       string    `json:"frequency"`
	DayOfWeek       *int      `json:"day_of_week,omitempty"`  // 0=Sunday .. 6=Saturday
	DayOfMonth      *int      `json:"day_of_month,omitempty"` // 1..31
	TimeOfDay       string    `json:"time_of_day"`            // "HH:MM", UTC
	NextRunAt       time.Time `json:"next_run_at"`
	ContentType     string    `json:"content_type"`
	EnabledChannels []string  `json:"enabled_channels"`
	Topic           string    `json:"topic"`
	Keywords        []string  `json:"keywords,omitempty"`
	TargetWords     int       `json:"target_words"`
	ModelTier       string    `json:"model_tier"`
	MediaKey        string    `json:"media_key,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Brief builds the job input for one firing of the automation.
func (a Automation) Brief() JobInput {
	return JobInput{
		Topic:       a.Topic,
		Keywords:    a.Keywords,
		TargetWords: a.TargetWords,
		ModelTier:   a.ModelTier,
		Channels:    a.EnabledChannels,
		MediaKey:    a.MediaKey,
	}
}
