package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/store"
)

type fakeStore struct {
	due       []models.Automation
	created   []store.CreateJobParams
	nextRuns  map[string]time.Time
	createErr error
}

func (f *fakeStore) ListDueAutomations(context.Context, time.Time) ([]models.Automation, error) {
	return f.due, nil
}

func (f *fakeStore) CreateJob(_ context.Context, p store.CreateJobParams) (models.Job, error) {
	if f.createErr != nil {
		return models.Job{}, f.createErr
	}
	f.created = append(f.created, p)
	return models.Job{ID: "job-" + *p.AutomationID, ClientID: p.ClientID, Type: p.Type, Input: p.Input}, nil
}

func (f *fakeStore) UpdateNextRun(_ context.Context, id string, next time.Time) error {
	f.nextRuns[id] = next
	return nil
}

type fakeQueue struct {
	enqueued []string
	held     map[string]bool
}

func (f *fakeQueue) Enqueue(_ context.Context, jobID string, _ time.Time) error {
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func (f *fakeQueue) AcquireAutomationLock(_ context.Context, id string) (bool, error) {
	return !f.held[id], nil
}

func (f *fakeQueue) ReleaseAutomationLock(_ context.Context, id string) error {
	delete(f.held, id)
	return nil
}

func dailyAutomation(id string) models.Automation {
	return models.Automation{
		ID:          id,
		ClientID:    "c1",
		Frequency:   models.FreqDaily,
		TimeOfDay:   "09:00",
		ContentType: models.JobTypeArticle,
		Topic:       "gardening",
		Active:      true,
	}
}

func newService(fs *fakeStore, fq *fakeQueue) *Service {
	return New(fs, fq, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTickDispatchesDueAutomations(t *testing.T) {
	fs := &fakeStore{
		due:      []models.Automation{dailyAutomation("a1"), dailyAutomation("a2")},
		nextRuns: make(map[string]time.Time),
	}
	fq := &fakeQueue{held: make(map[string]bool)}
	svc := newService(fs, fq)

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	n, err := svc.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 2 {
		t.Fatalf("dispatched = %d", n)
	}
	if len(fs.created) != 2 || len(fq.enqueued) != 2 {
		t.Fatalf("created=%d enqueued=%d", len(fs.created), len(fq.enqueued))
	}
	// 10:00 already past 09:00: next fire is tomorrow.
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if got := fs.nextRuns["a1"]; !got.Equal(want) {
		t.Fatalf("next run = %s, want %s", got, want)
	}
	if fs.created[0].Type != models.JobTypeArticle {
		t.Fatalf("job type = %s", fs.created[0].Type)
	}
}

func TestTickSkipsLockedAutomation(t *testing.T) {
	fs := &fakeStore{
		due:      []models.Automation{dailyAutomation("a1")},
		nextRuns: make(map[string]time.Time),
	}
	fq := &fakeQueue{held: map[string]bool{"a1": true}}
	svc := newService(fs, fq)

	n, err := svc.Tick(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 0 || len(fs.created) != 0 {
		t.Fatalf("locked automation dispatched: n=%d created=%d", n, len(fs.created))
	}
	// next_run_at untouched: the other tick owns advancing it.
	if len(fs.nextRuns) != 0 {
		t.Fatalf("next run advanced under lock: %v", fs.nextRuns)
	}
}

func TestTickBrokenRecurrenceLeavesRowDue(t *testing.T) {
	bad := dailyAutomation("a1")
	bad.Frequency = models.FreqWeekly // weekly without day_of_week
	fs := &fakeStore{
		due:      []models.Automation{bad, dailyAutomation("a2")},
		nextRuns: make(map[string]time.Time),
	}
	fq := &fakeQueue{held: make(map[string]bool)}
	svc := newService(fs, fq)

	n, err := svc.Tick(context.Background(), time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	// The bad row neither fires nor advances; the healthy one still runs.
	if n != 1 {
		t.Fatalf("dispatched = %d", n)
	}
	if _, ok := fs.nextRuns["a1"]; ok {
		t.Fatal("broken automation advanced its next run")
	}
	if len(fs.created) != 1 || *fs.created[0].AutomationID != "a2" {
		t.Fatalf("created = %+v", fs.created)
	}
}

func TestTickCreateJobFailureDoesNotAdvance(t *testing.T) {
	fs := &fakeStore{
		due:       []models.Automation{dailyAutomation("a1")},
		nextRuns:  make(map[string]time.Time),
		createErr: errors.New("connection refused"),
	}
	fq := &fakeQueue{held: make(map[string]bool)}
	svc := newService(fs, fq)

	n, err := svc.Tick(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 0 {
		t.Fatalf("dispatched = %d", n)
	}
	if _, ok := fs.nextRuns["a1"]; ok {
		t.Fatal("failed dispatch advanced next run")
	}
}
