// Package api exposes the producer HTTP surface: manual job submission,
// job/progress polling, ledger queries, and the external scheduler tick.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/ledger"
	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/publish"
	"content-automation-pipeline/internal/queue"
	"content-automation-pipeline/internal/ratelimit"
	"content-automation-pipeline/internal/scheduler"
	"content-automation-pipeline/internal/store"
	"content-automation-pipeline/internal/telemetry"
)

// Server wires HTTP handlers over the store, queue, and ledger.
type Server struct {
	cfg       config.Config
	store     *store.Store
	queue     *queue.RedisQueue
	ledger    *ledger.Service
	limiter   *ratelimit.TokenBucket
	scheduler *scheduler.Service
	validate  *validator.Validate
}

func New(cfg config.Config, st *store.Store, q *queue.RedisQueue, led *ledger.Service, limiter *ratelimit.TokenBucket, sched *scheduler.Service) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		queue:     q,
		ledger:    led,
		limiter:   limiter,
		scheduler: sched,
		validate:  validator.New(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/attempts", s.handleListAttempts)
	r.Get("/clients/{id}/balance", s.handleBalance)
	r.Get("/clients/{id}/ledger", s.handleLedgerEntries)
	r.Post("/clients/{id}/credits", s.handleGrantCredits)
	r.Post("/scheduler/tick", s.handleSchedulerTick)
	r.Get("/channels/wordpress/verify", s.handleVerifyWordPress)
	return r
}

type createJobRequest struct {
	ClientID    string   `json:"client_id" validate:"required"`
	Type        string   `json:"type" validate:"required,oneof=article social_copy"`
	Topic       string   `json:"topic" validate:"required"`
	Title       string   `json:"title,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	TargetWords int      `json:"target_words,omitempty" validate:"gte=0,lte=20000"`
	ModelTier   string   `json:"model_tier,omitempty" validate:"omitempty,oneof=standard premium"`
	Channels    []string `json:"channels,omitempty" validate:"dive,oneof=wordpress social"`
	MediaKey    string   `json:"media_key,omitempty"`
	RunAt       *string  `json:"run_at,omitempty"` // RFC 3339; absent means now
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s failed on %q", verrs[0].Field(), verrs[0].Tag()))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	runAt := time.Now()
	if req.RunAt != nil {
		t, err := time.Parse(time.RFC3339, *req.RunAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "run_at must be RFC 3339")
			return
		}
		runAt = t
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.AllowClient(r.Context(), req.ClientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit check failed")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	// Early affordability check. The pipeline re-checks before generating;
	// this only keeps obviously unfundable jobs out of the queue.
	action := ledger.Action{Kind: req.Type, Words: req.TargetWords, ModelTier: req.ModelTier}
	if err := s.ledger.RequireCredits(r.Context(), req.ClientID, action); err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			writeError(w, http.StatusPaymentRequired, err.Error())
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "credit check failed")
		return
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		ClientID: req.ClientID,
		Type:     req.Type,
		Input: models.JobInput{
			Topic:       req.Topic,
			Title:       req.Title,
			Keywords:    req.Keywords,
			TargetWords: req.TargetWords,
			ModelTier:   req.ModelTier,
			Channels:    req.Channels,
			MediaKey:    req.MediaKey,
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}
	if err := s.queue.Enqueue(r.Context(), job.ID, runAt); err != nil {
		msg := "enqueue failed: " + err.Error()
		if mErr := s.store.MarkProcessing(r.Context(), job.ID); mErr == nil {
			_ = s.store.MarkFailed(r.Context(), job.ID, msg)
		}
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load job failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempts, err := s.store.ListPublishAttempts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list attempts failed")
		return
	}
	if attempts == nil {
		attempts = []models.PublishAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := s.ledger.Balance(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "balance lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": id, "balance": balance})
}

func (s *Server) handleLedgerEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.store.LedgerEntries(r.Context(), id, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list ledger failed")
		return
	}
	if entries == nil {
		entries = []models.CreditLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type grantRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "amount must be positive and reason set")
		return
	}
	balance, err := s.ledger.Grant(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "grant failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": id, "balance": balance})
}

// handleSchedulerTick runs one scheduler pass. The deployment's external
// invoker (cron, uptime pinger) calls this; the worker's internal ticker is
// a fallback, and both paths are safe to overlap thanks to the per-automation
// lock.
func (s *Server) handleSchedulerTick(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.Tick(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispatched": n})
}

// handleVerifyWordPress checks CMS connectivity and credentials without
// creating content.
func (s *Server) handleVerifyWordPress(w http.ResponseWriter, r *http.Request) {
	if err := publish.NewWordPressChannel(s.cfg).Verify(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
