// Package providers holds the HTTP clients for the external generation and
// detection/humanize services. Both are black boxes with a request/response
// contract; provider failures are pipeline-level stage failures, never
// process crashes.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"content-automation-pipeline/internal/config"
)

// GenerationRequest is the wire contract for the generation provider.
type GenerationRequest struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	ModelHint    string  `json:"model_hint,omitempty"`
	Temperature  float64 `json:"temperature"`
}

// GenerationResult is the structured response on success.
type GenerationResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// GenerationClient calls the text generation provider.
type GenerationClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewGenerationClient(cfg config.Config) *GenerationClient {
	timeout := cfg.GenerationTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &GenerationClient{
		url:        cfg.GenerationURL,
		apiKey:     cfg.GenerationAPIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate requests one piece of content. Non-2xx responses and malformed
// JSON both fail the call; the provider's message is preserved verbatim for
// diagnosis.
func (c *GenerationClient) Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	var res GenerationResult
	if err := postJSON(ctx, c.httpClient, c.url, c.apiKey, req, &res); err != nil {
		return GenerationResult{}, fmt.Errorf("generation provider: %w", err)
	}
	if res.Title == "" || res.Body == "" {
		return GenerationResult{}, fmt.Errorf("generation provider: response missing title or body")
	}
	return res, nil
}

// postJSON performs one JSON round trip shared by both provider clients.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}
