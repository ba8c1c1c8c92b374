package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"content-automation-pipeline/internal/models"
)

// CreateArtifactParams collects inputs for a guarded artifact insert.
type CreateArtifactParams struct {
	ClientID    string
	Type        string
	Title       string
	Body        string
	DedupWindow time.Duration
}

// CreateArtifact inserts an artifact under a write-time title claim. When a
// concurrent job already holds an unexpired claim on (client, type, title),
// no row is written and the winner's artifact is returned with existing=true.
func (s *Store) CreateArtifact(ctx context.Context, p CreateArtifactParams) (models.ContentArtifact, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ContentArtifact{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	id := uuid.New().String()
	now := time.Now().UTC()
	expires := now.Add(p.DedupWindow)

	// Claim first: losing the claim must not leave an orphan artifact row.
	tag, err := tx.Exec(ctx, `
		INSERT INTO artifact_titles (client_id, content_type, title, artifact_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, content_type, title) DO UPDATE
		SET artifact_id = EXCLUDED.artifact_id, expires_at = EXCLUDED.expires_at
		WHERE artifact_titles.expires_at <= NOW()
	`, p.ClientID, p.Type, p.Title, id, expires)
	if err != nil {
		return models.ContentArtifact{}, false, fmt.Errorf("claim title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Someone else holds the claim; surface their artifact instead.
		if err := tx.Rollback(ctx); err != nil {
			return models.ContentArtifact{}, false, fmt.Errorf("rollback after claim conflict: %w", err)
		}
		winnerID, found, err := s.FindActiveTitle(ctx, p.ClientID, p.Type, p.Title)
		if err != nil {
			return models.ContentArtifact{}, false, err
		}
		if !found {
			return models.ContentArtifact{}, false, errors.New("title claim conflict but no active claim found")
		}
		existing, err := s.GetArtifact(ctx, winnerID)
		if err != nil {
			return models.ContentArtifact{}, false, err
		}
		return existing, true, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO artifacts (id, client_id, type, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, p.ClientID, p.Type, p.Title, p.Body, now)
	if err != nil {
		return models.ContentArtifact{}, false, fmt.Errorf("insert artifact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ContentArtifact{}, false, fmt.Errorf("commit: %w", err)
	}

	return models.ContentArtifact{
		ID:        id,
		ClientID:  p.ClientID,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		CreatedAt: now,
	}, false, nil
}

// FindActiveTitle returns the artifact holding an unexpired claim on the
// exact (client, type, title) triple, if any.
func (s *Store) FindActiveTitle(ctx context.Context, clientID, contentType, title string) (string, bool, error) {
	var artifactID string
	err := s.pool.QueryRow(ctx, `
		SELECT artifact_id FROM artifact_titles
		WHERE client_id = $1 AND content_type = $2 AND title = $3 AND expires_at > NOW()
	`, clientID, contentType, title).Scan(&artifactID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query title claim: %w", err)
	}
	return artifactID, true, nil
}

// GetArtifact fetches an artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (models.ContentArtifact, error) {
	var a models.ContentArtifact
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, type, title, body, created_at FROM artifacts WHERE id = $1
	`, id).Scan(&a.ID, &a.ClientID, &a.Type, &a.Title, &a.Body, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContentArtifact{}, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ContentArtifact{}, fmt.Errorf("scan artifact: %w", err)
	}
	return a, nil
}
