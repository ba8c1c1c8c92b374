package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"content-automation-pipeline/internal/models"
)

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	AutomationID *string
	ClientID     string
	Type         string
	Input        models.JobInput
}

// CreateJob inserts a job in the pending state. Jobs are never deleted;
// terminal rows remain as historical records.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	inputJSON, err := json.Marshal(p.Input)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal input: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, automation_id, client_id, type, input, status, progress, current_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, '', $7, $7)
	`, id, p.AutomationID, p.ClientID, p.Type, inputJSON, models.StatusPending, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:           id,
		AutomationID: p.AutomationID,
		ClientID:     p.ClientID,
		Type:         p.Type,
		Input:        p.Input,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, automation_id, client_id, type, input, status, progress, current_step, output, error, started_at, completed_at, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var automationID pgtype.Text
	var inputJSON []byte
	var outputJSON []byte
	var jobErr pgtype.Text
	var startedAt, completedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &automationID, &job.ClientID, &job.Type, &inputJSON, &job.Status,
		&job.Progress, &job.CurrentStep, &outputJSON, &jobErr, &startedAt, &completedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal input: %w", err)
	}
	if len(outputJSON) > 0 {
		var out models.JobOutput
		if err := json.Unmarshal(outputJSON, &out); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal output: %w", err)
		}
		job.Output = &out
	}
	job.AutomationID = textPtr(automationID)
	job.Error = textPtr(jobErr)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return job, nil
}

// MarkProcessing transitions pending -> processing and stamps started_at.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// UpdateProgress writes progress and the current step while the job runs.
// Readers may observe slightly stale values; terminal status never regresses
// because terminal writes are guarded separately.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress int, step string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET progress = $2, current_step = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, progress, step, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// MarkCompleted writes the terminal success state in one atomic update.
func (s *Store) MarkCompleted(ctx context.Context, id string, output models.JobOutput) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = 100, current_step = 'done', output = $3,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusCompleted, outputJSON, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// MarkFailed writes the terminal failure state, preserving the error verbatim.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = 100, error = $3,
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusFailed, errMsg, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return nil
}

// transitionConflict distinguishes a missing row from an out-of-order update.
func (s *Store) transitionConflict(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query job status: %w", err)
	}
	return fmt.Errorf("job %s in status %s: %w", id, status, ErrInvalidTransition)
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
