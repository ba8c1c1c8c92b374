// Package ledger meters billable pipeline actions against per-client credit
// balances. The balance authority is the storage layer's conditional append;
// the pre-check here only avoids wasted provider spend.
package ledger

import (
	"context"
	"fmt"

	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/store"
)

// ErrInsufficientCredits mirrors the storage sentinel so callers can branch
// without importing store.
var ErrInsufficientCredits = store.ErrInsufficientCredits

// Action identifies a billable pipeline operation.
type Action struct {
	Kind      string // models.JobTypeArticle or models.JobTypeSocialCopy
	Words     int
	ModelTier string
}

// Store is the slice of persistence the ledger needs.
type Store interface {
	GetClient(ctx context.Context, id string) (models.Client, error)
	Balance(ctx context.Context, clientID string) (int64, error)
	AppendLedgerEntry(ctx context.Context, clientID string, delta int64, reason string, jobID *string) (int64, error)
}

// Service enforces the credit invariants for the pipeline.
type Service struct {
	store Store
}

func New(st Store) *Service {
	return &Service{store: st}
}

// Cost prices an action from its kind, output size, and model tier.
func Cost(a Action) int64 {
	var base int64
	switch a.Kind {
	case models.JobTypeSocialCopy:
		base = 2
	default:
		base = 10
	}
	// One increment per started block of 500 words beyond the first.
	if a.Words > 500 {
		base += int64((a.Words - 1) / 500 * 5)
	}
	if a.ModelTier == "premium" {
		base *= 2
	}
	return base
}

// RequireCredits is the read-only pre-check run before any metered provider
// call. Unlimited-plan clients always pass.
func (s *Service) RequireCredits(ctx context.Context, clientID string, a Action) error {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("lookup client: %w", err)
	}
	if client.Plan == models.PlanUnlimited {
		return nil
	}
	balance, err := s.store.Balance(ctx, clientID)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance < Cost(a) {
		return fmt.Errorf("client %s balance %d below cost %d: %w", clientID, balance, Cost(a), ErrInsufficientCredits)
	}
	return nil
}

// DeductAfterAction charges exactly once for a successful billable action and
// returns the remaining balance. The storage append is atomic: concurrent
// deductions for one client serialize there and can never overdraw. Unlimited
// clients are never charged.
func (s *Service) DeductAfterAction(ctx context.Context, clientID string, a Action, jobID string) (int64, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("lookup client: %w", err)
	}
	if client.Plan == models.PlanUnlimited {
		return s.store.Balance(ctx, clientID)
	}
	reason := fmt.Sprintf("charge:%s", a.Kind)
	return s.store.AppendLedgerEntry(ctx, clientID, -Cost(a), reason, &jobID)
}

// Grant appends a positive entry, e.g. a purchased credit pack.
func (s *Service) Grant(ctx context.Context, clientID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return s.store.AppendLedgerEntry(ctx, clientID, amount, reason, nil)
}

// Balance reports the client's current fold of ledger entries.
func (s *Service) Balance(ctx context.Context, clientID string) (int64, error) {
	return s.store.Balance(ctx, clientID)
}
