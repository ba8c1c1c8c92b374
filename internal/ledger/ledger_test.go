package ledger

import (
	"context"
	"errors"
	"testing"

	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/store"
)

// fakeStore folds entries in memory with the same refuse-below-zero contract
// as the Postgres append.
type fakeStore struct {
	clients map[string]models.Client
	entries map[string][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients: make(map[string]models.Client),
		entries: make(map[string][]int64),
	}
}

func (f *fakeStore) GetClient(_ context.Context, id string) (models.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return models.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) Balance(_ context.Context, clientID string) (int64, error) {
	var sum int64
	for _, d := range f.entries[clientID] {
		sum += d
	}
	return sum, nil
}

func (f *fakeStore) AppendLedgerEntry(ctx context.Context, clientID string, delta int64, _ string, _ *string) (int64, error) {
	balance, _ := f.Balance(ctx, clientID)
	if balance+delta < 0 {
		return 0, store.ErrInsufficientCredits
	}
	f.entries[clientID] = append(f.entries[clientID], delta)
	return balance + delta, nil
}

func TestCost(t *testing.T) {
	cases := []struct {
		name string
		a    Action
		want int64
	}{
		{"short article", Action{Kind: models.JobTypeArticle, Words: 400}, 10},
		{"long article", Action{Kind: models.JobTypeArticle, Words: 1200}, 20},
		{"premium article", Action{Kind: models.JobTypeArticle, Words: 400, ModelTier: "premium"}, 20},
		{"social copy", Action{Kind: models.JobTypeSocialCopy, Words: 80}, 2},
		{"boundary 500 words", Action{Kind: models.JobTypeArticle, Words: 500}, 10},
		{"boundary 501 words", Action{Kind: models.JobTypeArticle, Words: 501}, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cost(tc.a); got != tc.want {
				t.Fatalf("Cost(%+v) = %d, want %d", tc.a, got, tc.want)
			}
		})
	}
}

func TestRequireCredits(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fs.clients["c1"] = models.Client{ID: "c1", Plan: models.PlanMetered}
	fs.clients["c2"] = models.Client{ID: "c2", Plan: models.PlanUnlimited}
	svc := New(fs)

	action := Action{Kind: models.JobTypeArticle, Words: 400}

	if err := svc.RequireCredits(ctx, "c1", action); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("empty balance: got %v, want ErrInsufficientCredits", err)
	}

	if _, err := svc.Grant(ctx, "c1", 50, "credit pack"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.RequireCredits(ctx, "c1", action); err != nil {
		t.Fatalf("funded client rejected: %v", err)
	}

	// Unlimited plan bypasses the check entirely.
	if err := svc.RequireCredits(ctx, "c2", action); err != nil {
		t.Fatalf("unlimited client rejected: %v", err)
	}
}

func TestDeductAfterAction(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	fs.clients["c1"] = models.Client{ID: "c1", Plan: models.PlanMetered}
	fs.clients["c2"] = models.Client{ID: "c2", Plan: models.PlanUnlimited}
	svc := New(fs)

	action := Action{Kind: models.JobTypeArticle, Words: 400}

	if _, err := svc.Grant(ctx, "c1", 25, "credit pack"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	remaining, err := svc.DeductAfterAction(ctx, "c1", action, "job-1")
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if remaining != 15 {
		t.Fatalf("remaining = %d, want 15", remaining)
	}

	remaining, err = svc.DeductAfterAction(ctx, "c1", action, "job-2")
	if err != nil || remaining != 5 {
		t.Fatalf("second deduct: remaining=%d err=%v", remaining, err)
	}

	// Third deduction would overdraw; balance stays untouched.
	if _, err := svc.DeductAfterAction(ctx, "c1", action, "job-3"); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientCredits", err)
	}
	if balance, _ := svc.Balance(ctx, "c1"); balance != 5 {
		t.Fatalf("balance mutated by refused deduction: %d", balance)
	}

	// Unlimited clients are never charged.
	if _, err := svc.DeductAfterAction(ctx, "c2", action, "job-4"); err != nil {
		t.Fatalf("unlimited deduct: %v", err)
	}
	if balance, _ := svc.Balance(ctx, "c2"); balance != 0 {
		t.Fatalf("unlimited client charged: %d", balance)
	}

	if err := svc.RequireCredits(ctx, "missing", action); err == nil {
		t.Fatal("expected error for unknown client")
	}
}

func TestGrantRejectsNonPositive(t *testing.T) {
	fs := newFakeStore()
	fs.clients["c1"] = models.Client{ID: "c1", Plan: models.PlanMetered}
	svc := New(fs)

	if _, err := svc.Grant(context.Background(), "c1", 0, "nothing"); err == nil {
		t.Fatal("expected error for zero grant")
	}
	if _, err := svc.Grant(context.Background(), "c1", -5, "negative"); err == nil {
		t.Fatal("expected error for negative grant")
	}
}
