// Package pipeline runs the fixed per-job sequence: gather context, dedup
// pre-check, credit pre-check, generate, humanize (single pass), persist,
// bill, publish. Stages fail independently; side effects of earlier stages
// are never rolled back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/dedup"
	"content-automation-pipeline/internal/ledger"
	"content-automation-pipeline/internal/models"
	"content-automation-pipeline/internal/providers"
	"content-automation-pipeline/internal/publish"
	"content-automation-pipeline/internal/store"
	"content-automation-pipeline/internal/telemetry"
)

// Store is the job/artifact persistence the orchestrator drives.
type Store interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int, step string) error
	MarkCompleted(ctx context.Context, id string, output models.JobOutput) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	CreateArtifact(ctx context.Context, p store.CreateArtifactParams) (models.ContentArtifact, bool, error)
}

// Generator is the external text generation provider.
type Generator interface {
	Generate(ctx context.Context, req providers.GenerationRequest) (providers.GenerationResult, error)
}

// Detector is the external detection/humanize provider.
type Detector interface {
	Scan(ctx context.Context, text string) (providers.ScanResult, error)
	Revise(ctx context.Context, req providers.ReviseRequest) (providers.ReviseResult, error)
}

// Ledger meters billable actions.
type Ledger interface {
	RequireCredits(ctx context.Context, clientID string, a ledger.Action) error
	DeductAfterAction(ctx context.Context, clientID string, a ledger.Action, jobID string) (int64, error)
}

// Dedup answers the pre-generation duplicate check.
type Dedup interface {
	Check(ctx context.Context, clientID, contentType, title string) (string, bool, error)
	Window() time.Duration
}

// Publisher fans the artifact out after persistence.
type Publisher interface {
	Dispatch(ctx context.Context, artifact models.ContentArtifact, jobID string, channels []string, mediaKey string) []publish.Outcome
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store     Store
	Generator Generator
	Detector  Detector
	Ledger    Ledger
	Dedup     Dedup
	Publisher Publisher
	Logger    *slog.Logger
}

// Orchestrator executes jobs. It is the only component that transitions job
// status.
type Orchestrator struct {
	deps      Deps
	threshold float64
	language  string
}

func New(cfg config.Config, deps Deps) *Orchestrator {
	threshold := cfg.AIScoreThreshold
	if threshold == 0 {
		threshold = 0.6
	}
	language := cfg.TargetLanguage
	if language == "" {
		language = "en"
	}
	return &Orchestrator{deps: deps, threshold: threshold, language: language}
}

// Execute runs one job to a terminal state. Stage failures are absorbed into
// the job record; the returned error covers only infrastructure trouble (the
// job row itself unreachable).
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	log := o.deps.Logger.With("job_id", jobID)

	job, err := o.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Terminal() {
		// Stale queue entry; the terminal record stands.
		return nil
	}
	if job.Status == models.StatusPending {
		if err := o.deps.Store.MarkProcessing(ctx, jobID); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
	}

	// Stage 1: context gather. Pure input resolution, no side effects.
	o.progress(ctx, jobID, 5, "gathering_context")
	input := job.Input
	if strings.TrimSpace(input.Topic) == "" {
		return o.fail(ctx, log, jobID, "job input missing topic")
	}
	proposedTitle := dedup.Normalize(input.Title)
	if proposedTitle == "" {
		proposedTitle = dedup.Normalize(input.Topic)
	}
	action := ledger.Action{Kind: job.Type, Words: input.TargetWords, ModelTier: input.ModelTier}

	// Stage 2: dedup pre-check. A hit short-circuits the whole pipeline:
	// no generation call, no billing.
	o.progress(ctx, jobID, 10, "dedup_check")
	if existingID, found, err := o.deps.Dedup.Check(ctx, job.ClientID, job.Type, proposedTitle); err != nil {
		return o.fail(ctx, log, jobID, fmt.Sprintf("dedup check: %v", err))
	} else if found {
		return o.completeDuplicate(ctx, log, jobID, existingID)
	}

	// Stage 3: credit pre-check, before any metered provider call.
	o.progress(ctx, jobID, 15, "credit_check")
	if err := o.deps.Ledger.RequireCredits(ctx, job.ClientID, action); err != nil {
		return o.fail(ctx, log, jobID, err.Error())
	}

	// Stage 4: generation.
	o.progress(ctx, jobID, 25, "generating")
	system, user := BuildPrompts(job.Type, input)
	generated, err := o.deps.Generator.Generate(ctx, providers.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		ModelHint:    input.ModelTier,
		Temperature:  0.7,
	})
	if err != nil {
		// Provider message preserved verbatim; no charge has happened.
		return o.fail(ctx, log, jobID, err.Error())
	}
	title := generated.Title
	if input.Title != "" {
		title = input.Title
	}
	body := generated.Body

	// Stage 5: detection plus at most one humanize pass. The single pass is
	// the cost bound; the re-scan only feeds the job report.
	o.progress(ctx, jobID, 55, "humanizing")
	var scoreBefore, scoreAfter *float64
	scan, err := o.deps.Detector.Scan(ctx, body)
	if err != nil {
		return o.fail(ctx, log, jobID, err.Error())
	}
	scoreBefore = &scan.AILikelihood
	if scan.AILikelihood > o.threshold {
		revised, err := o.deps.Detector.Revise(ctx, providers.ReviseRequest{
			Text:           body,
			TargetLanguage: o.language,
			PreserveTone:   true,
			Sentences:      scan.Sentences,
		})
		if err != nil {
			return o.fail(ctx, log, jobID, err.Error())
		}
		body = revised.RevisedText
		telemetry.HumanizePasses.Inc()
		if rescan, err := o.deps.Detector.Scan(ctx, body); err == nil {
			scoreAfter = &rescan.AILikelihood
		} else {
			log.Warn("post-revision scan failed, score omitted from report", "error", err)
		}
	}

	// Stage 6: persist under the write-time dedup claim. Losing the claim to
	// a concurrent job is a success that references the winner.
	o.progress(ctx, jobID, 70, "persisting")
	artifact, existing, err := o.deps.Store.CreateArtifact(ctx, store.CreateArtifactParams{
		ClientID:    job.ClientID,
		Type:        job.Type,
		Title:       dedup.Normalize(title),
		Body:        body,
		DedupWindow: o.deps.Dedup.Window(),
	})
	if err != nil {
		return o.fail(ctx, log, jobID, fmt.Sprintf("persist artifact: %v", err))
	}
	if existing {
		return o.completeDuplicate(ctx, log, jobID, artifact.ID)
	}

	// Stage 7: exactly one deduction, only now that the artifact exists.
	o.progress(ctx, jobID, 80, "billing")
	action.Words = CountWords(body)
	cost := ledger.Cost(action)
	if _, err := o.deps.Ledger.DeductAfterAction(ctx, job.ClientID, action, jobID); err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			// Balance drained between pre-check and charge. The artifact
			// stays (side effects are never rolled back); the job reports
			// the billing failure.
			return o.fail(ctx, log, jobID, err.Error())
		}
		return o.fail(ctx, log, jobID, fmt.Sprintf("deduct credits: %v", err))
	}
	telemetry.CreditsDeducted.Add(float64(cost))

	// Stage 8: fan-out. Channel outcomes are recorded but never fail the job.
	if len(input.Channels) > 0 {
		o.progress(ctx, jobID, 90, "publishing")
		outcomes := o.deps.Publisher.Dispatch(ctx, artifact, jobID, input.Channels, input.MediaKey)
		for _, out := range outcomes {
			if out.Failed() {
				log.Warn("publish channel failed", "channel", out.Channel, "error", out.Error)
			}
		}
	}

	output := models.JobOutput{
		ArtifactID:     artifact.ID,
		AIScoreBefore:  scoreBefore,
		AIScoreAfter:   scoreAfter,
		CreditsCharged: cost,
	}
	if err := o.deps.Store.MarkCompleted(ctx, jobID, output); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	telemetry.JobsCompleted.Inc()
	log.Info("job completed", "artifact_id", artifact.ID, "credits", cost)
	return nil
}

// completeDuplicate finishes a job whose content already exists in-window.
// Not a failure: the job references the standing artifact and nothing is
// charged.
func (o *Orchestrator) completeDuplicate(ctx context.Context, log *slog.Logger, jobID, artifactID string) error {
	output := models.JobOutput{ArtifactID: artifactID, Duplicate: true}
	if err := o.deps.Store.MarkCompleted(ctx, jobID, output); err != nil {
		return fmt.Errorf("mark duplicate completed: %w", err)
	}
	telemetry.JobsDuplicate.Inc()
	telemetry.JobsCompleted.Inc()
	log.Info("job completed as duplicate", "artifact_id", artifactID)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, jobID, msg string) error {
	if err := o.deps.Store.MarkFailed(ctx, jobID, msg); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	telemetry.JobsFailed.Inc()
	log.Warn("job failed", "error", msg)
	return nil
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, pct int, step string) {
	if err := o.deps.Store.UpdateProgress(ctx, jobID, pct, step); err != nil {
		o.deps.Logger.Warn("update progress", "job_id", jobID, "step", step, "error", err)
	}
}

// BuildPrompts renders the provider prompts for a brief. The prompt text
// itself is deliberately plain; prompt engineering lives in the provider.
func BuildPrompts(jobType string, input models.JobInput) (system, user string) {
	switch jobType {
	case models.JobTypeSocialCopy:
		system = "You write short social media copy."
	default:
		system = "You write long-form articles."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", input.Topic)
	if input.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", input.Title)
	}
	if len(input.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(input.Keywords, ", "))
	}
	if input.TargetWords > 0 {
		fmt.Fprintf(&b, "Target length: %d words\n", input.TargetWords)
	}
	return system, b.String()
}

// CountWords sizes the output for billing.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
