package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"content-automation-pipeline/internal/config"
)

// SentenceScore is one sentence's AI-likelihood from a scan.
type SentenceScore struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// ScanResult reports how AI-like a text reads.
type ScanResult struct {
	AILikelihood float64         `json:"ai_likelihood_score"`
	Sentences    []SentenceScore `json:"per_sentence_scores"`
}

// ReviseRequest asks the humanize provider for one revision pass.
type ReviseRequest struct {
	Text           string          `json:"text"`
	TargetLanguage string          `json:"target_language"`
	PreserveTone   bool            `json:"preserve_tone"`
	Sentences      []SentenceScore `json:"per_sentence_scores,omitempty"`
}

// ReviseResult carries the revised text and the provider's change notes.
type ReviseResult struct {
	RevisedText    string `json:"revised_text"`
	ChangesSummary string `json:"changes_summary"`
}

// DetectionClient calls the detection/humanize provider.
type DetectionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewDetectionClient(cfg config.Config) *DetectionClient {
	timeout := cfg.DetectionTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &DetectionClient{
		baseURL:    strings.TrimRight(cfg.DetectionURL, "/"),
		apiKey:     cfg.DetectionAPIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Scan scores a text for AI-likelihood.
func (c *DetectionClient) Scan(ctx context.Context, text string) (ScanResult, error) {
	var res ScanResult
	in := struct {
		Text string `json:"text"`
	}{Text: text}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/scan", c.apiKey, in, &res); err != nil {
		return ScanResult{}, fmt.Errorf("detection provider: %w", err)
	}
	return res, nil
}

// Revise performs one humanize pass. Callers must not loop this: the single
// pass is the cost bound.
func (c *DetectionClient) Revise(ctx context.Context, req ReviseRequest) (ReviseResult, error) {
	var res ReviseResult
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/revise", c.apiKey, req, &res); err != nil {
		return ReviseResult{}, fmt.Errorf("humanize provider: %w", err)
	}
	if res.RevisedText == "" {
		return ReviseResult{}, fmt.Errorf("humanize provider: empty revised text")
	}
	return res, nil
}
