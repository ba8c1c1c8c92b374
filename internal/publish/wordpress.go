package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"content-automation-pipeline/internal/config"
	"content-automation-pipeline/internal/models"
)

// ChannelWordPress is the channel identifier automations use.
const ChannelWordPress = "wordpress"

// WordPressChannel publishes artifacts as posts on a WordPress-style CMS via
// its REST API, authenticated with an application password.
type WordPressChannel struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
}

func NewWordPressChannel(cfg config.Config) *WordPressChannel {
	timeout := cfg.PublishTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WordPressChannel{
		baseURL:     strings.TrimRight(cfg.WPBaseURL, "/"),
		username:    cfg.WPUsername,
		appPassword: cfg.WPAppPassword,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *WordPressChannel) Name() string { return ChannelWordPress }

type wpPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type wpPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// Attempt creates one post. Credential gaps are ordinary failures, recorded
// like any network error.
func (c *WordPressChannel) Attempt(ctx context.Context, pub Publication) Outcome {
	if c.baseURL == "" || c.username == "" || c.appPassword == "" {
		return failure(c.Name(), "wordpress credentials not configured")
	}

	payload, err := json.Marshal(wpPostRequest{
		Title:   pub.Artifact.Title,
		Content: ShortcodesToHTML(pub.Artifact.Body),
		Status:  "publish",
	})
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("marshal post: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/posts", bytes.NewReader(payload))
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("create post: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(c.Name(), fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	var post wpPostResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return failure(c.Name(), fmt.Sprintf("malformed response: %v", err))
	}
	return Outcome{
		Channel:     c.Name(),
		Status:      models.AttemptSuccess,
		ExternalID:  fmt.Sprintf("%d", post.ID),
		ExternalURL: post.Link,
	}
}

// Verify checks connectivity and credentials without creating content.
func (c *WordPressChannel) Verify(ctx context.Context) error {
	if c.baseURL == "" || c.username == "" || c.appPassword == "" {
		return fmt.Errorf("wordpress credentials not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/wp-json/wp/v2/users/me", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verify connection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verify returned status %d", resp.StatusCode)
	}
	return nil
}
