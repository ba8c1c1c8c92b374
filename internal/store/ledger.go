package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"content-automation-pipeline/internal/models"
)

// GetClient fetches the billing plan for a client.
func (s *Store) GetClient(ctx context.Context, id string) (models.Client, error) {
	var c models.Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, plan, created_at FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Plan, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Client{}, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Client{}, fmt.Errorf("scan client: %w", err)
	}
	return c, nil
}

// Balance folds the client's ledger entries into a running balance.
func (s *Store) Balance(ctx context.Context, clientID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE client_id = $1
	`, clientID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("fold ledger: %w", err)
	}
	return balance, nil
}

// AppendLedgerEntry appends one immutable entry and returns the resulting
// balance. Negative deltas are conditional: the insert is refused with
// ErrInsufficientCredits when it would drive the balance below zero. A
// per-client advisory transaction lock serializes concurrent appends so two
// jobs cannot both pass the balance condition and overdraw.
func (s *Store) AppendLedgerEntry(ctx context.Context, clientID string, delta int64, reason string, jobID *string) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, clientID); err != nil {
		return 0, fmt.Errorf("acquire client lock: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (client_id, delta, reason, job_id, created_at)
		SELECT $1, $2, $3, $4, NOW()
		WHERE (SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE client_id = $1) + $2 >= 0
	`, clientID, delta, reason, jobID)
	if err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("client %s delta %d: %w", clientID, delta, ErrInsufficientCredits)
	}

	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE client_id = $1
	`, clientID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("fold ledger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// LedgerEntries lists a client's audit trail, newest first.
func (s *Store) LedgerEntries(ctx context.Context, clientID string, limit int) ([]models.CreditLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, delta, reason, job_id, created_at
		FROM credit_ledger WHERE client_id = $1
		ORDER BY id DESC LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []models.CreditLedgerEntry
	for rows.Next() {
		var e models.CreditLedgerEntry
		var jobID *string
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Delta, &e.Reason, &jobID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.JobID = jobID
		out = append(out, e)
	}
	return out, rows.Err()
}
