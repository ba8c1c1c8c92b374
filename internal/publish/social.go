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

// ChannelSocial is the channel identifier automations use.
const ChannelSocial = "social"

// MediaResolver turns a stored media key into a URL the platform API can
// fetch, downscaling oversized images along the way.
type MediaResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// SocialChannel distributes artifacts through a social posting API across the
// configured profile identifiers.
type SocialChannel struct {
	apiURL     string
	apiKey     string
	profiles   []string
	media      MediaResolver
	httpClient *http.Client
}

// NewSocialChannel builds the channel. media may be nil when no object store
// is configured; publications with a media key then fail validation.
func NewSocialChannel(cfg config.Config, media MediaResolver) *SocialChannel {
	timeout := cfg.PublishTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SocialChannel{
		apiURL:     strings.TrimRight(cfg.SocialAPIURL, "/"),
		apiKey:     cfg.SocialAPIKey,
		profiles:   cfg.SocialProfiles,
		media:      media,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *SocialChannel) Name() string { return ChannelSocial }

type socialPostRequest struct {
	Profiles   []string `json:"profiles"`
	Content    string   `json:"content"`
	MediaURL   string   `json:"media_url,omitempty"`
	ScheduleAt string   `json:"schedule_at,omitempty"`
}

type socialPostResponse struct {
	PostID string `json:"platform_post_id"`
	Status string `json:"status"`
}

func (c *SocialChannel) Attempt(ctx context.Context, pub Publication) Outcome {
	if c.apiURL == "" {
		return failure(c.Name(), "social API not configured")
	}
	if len(c.profiles) == 0 {
		return failure(c.Name(), "no social profiles mapped for this account")
	}

	req := socialPostRequest{
		Profiles: c.profiles,
		Content:  pub.Artifact.Title + "\n\n" + StripShortcodes(pub.Artifact.Body),
	}
	if pub.ScheduleAt != nil {
		req.ScheduleAt = *pub.ScheduleAt
	}
	if pub.MediaKey != "" {
		if c.media == nil {
			return failure(c.Name(), "media attachment requested but no media store configured")
		}
		url, err := c.media.Resolve(ctx, pub.MediaKey)
		if err != nil {
			return failure(c.Name(), fmt.Sprintf("resolve media %q: %v", pub.MediaKey, err))
		}
		req.MediaURL = url
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("marshal post: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/posts", bytes.NewReader(payload))
	if err != nil {
		return failure(c.Name(), fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
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

	var post socialPostResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return failure(c.Name(), fmt.Sprintf("malformed response: %v", err))
	}
	return Outcome{
		Channel:    c.Name(),
		Status:     models.AttemptSuccess,
		ExternalID: post.PostID,
	}
}
