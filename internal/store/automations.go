package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"content-automation-pipeline/internal/models"
)

// ListDueAutomations returns every active automation whose next_run_at is at
// or before the given instant. The caller dispatches each one and persists a
// freshly computed next_run_at afterwards.
func (s *Store) ListDueAutomations(ctx context.Context, now time.Time) ([]models.Automation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, frequency, day_of_week, day_of_month, time_of_day, next_run_at,
			content_type, enabled_channels, topic, keywords, target_words, model_tier, media_key,
			active, created_at, updated_at
		FROM automations
		WHERE active AND next_run_at <= $1
		ORDER BY next_run_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query due automations: %w", err)
	}
	defer rows.Close()

	var out []models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAutomation fetches one automation by id.
func (s *Store) GetAutomation(ctx context.Context, id string) (models.Automation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, client_id, frequency, day_of_week, day_of_month, time_of_day, next_run_at,
			content_type, enabled_channels, topic, keywords, target_words, model_tier, media_key,
			active, created_at, updated_at
		FROM automations WHERE id = $1
	`, id)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Automation{}, fmt.Errorf("automation %s: %w", id, ErrNotFound)
	}
	return a, err
}

// UpdateNextRun persists the recomputed fire time. This is the only automation
// field the scheduler owns.
func (s *Store) UpdateNextRun(ctx context.Context, id string, nextRun time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE automations SET next_run_at = $2, updated_at = NOW() WHERE id = $1
	`, id, nextRun)
	if err != nil {
		return fmt.Errorf("update next_run_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("automation %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanAutomation(row pgx.Row) (models.Automation, error) {
	var a models.Automation
	var dayOfWeek, dayOfMonth pgtype.Int4
	var channelsJSON, keywordsJSON []byte

	err := row.Scan(&a.ID, &a.ClientID, &a.Frequency, &dayOfWeek, &dayOfMonth, &a.TimeOfDay,
		&a.NextRunAt, &a.ContentType, &channelsJSON, &a.Topic, &keywordsJSON, &a.TargetWords,
		&a.ModelTier, &a.MediaKey, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Automation{}, err
	}

	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int32)
		a.DayOfWeek = &v
	}
	if dayOfMonth.Valid {
		v := int(dayOfMonth.Int32)
		a.DayOfMonth = &v
	}
	if err := json.Unmarshal(channelsJSON, &a.EnabledChannels); err != nil {
		return models.Automation{}, fmt.Errorf("unmarshal enabled_channels: %w", err)
	}
	if err := json.Unmarshal(keywordsJSON, &a.Keywords); err != nil {
		return models.Automation{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	return a, nil
}
