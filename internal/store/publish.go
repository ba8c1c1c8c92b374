package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"content-automation-pipeline/internal/models"
)

// CreatePublishAttempt records one channel outcome. Rows are immutable; each
// channel writes its own row so one channel's failure can never disturb
// another's success record.
func (s *Store) CreatePublishAttempt(ctx context.Context, a models.PublishAttempt) (models.PublishAttempt, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO publish_attempts (id, artifact_id, job_id, channel, status, external_id, external_url, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.ArtifactID, a.JobID, a.Channel, a.Status, a.ExternalID, a.ExternalURL, a.Error, a.CreatedAt)
	if err != nil {
		return models.PublishAttempt{}, fmt.Errorf("insert publish attempt: %w", err)
	}
	return a, nil
}

// ListPublishAttempts returns the per-channel breakdown for a job, in
// insertion order, so callers can retry only the channels that failed.
func (s *Store) ListPublishAttempts(ctx context.Context, jobID string) ([]models.PublishAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, artifact_id, job_id, channel, status, external_id, external_url, error, created_at
		FROM publish_attempts WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query publish attempts: %w", err)
	}
	defer rows.Close()

	var out []models.PublishAttempt
	for rows.Next() {
		var a models.PublishAttempt
		if err := rows.Scan(&a.ID, &a.ArtifactID, &a.JobID, &a.Channel, &a.Status,
			&a.ExternalID, &a.ExternalURL, &a.Error, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan publish attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
