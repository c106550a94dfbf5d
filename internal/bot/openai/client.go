// Package openai is a stateless adapter to the OpenAI-compatible chat
// completion, image generation and moderation endpoints. Failures surface as
// a closed set of failure kinds with user-facing apology texts; callers never
// see raw transport errors.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// Config configures the OpenAI-compatible API client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for Azure OpenAI or any
	// other OpenAI-compatible endpoint. Defaults to the public OpenAI URL.
	BaseURL string

	// DefaultModel answers free-tier users; PremiumModel answers subscribers.
	DefaultModel string
	PremiumModel string

	// Image generation parameters.
	ImageModel   string
	ImageSize    string
	ImageQuality string

	// Sampling parameters for chat completion.
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Timeout is the HTTP request timeout. Defaults to 60 s.
	Timeout time.Duration
}

// SubscriptionChecker gates premium-only capabilities.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// Client calls the external model APIs. Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
	subs   SubscriptionChecker
	logger *slog.Logger

	// sleep is the wait between retry attempts; nil uses a real timer.
	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Client for the configured endpoint.
func New(cfg Config, subs SubscriptionChecker, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		subs:   subs,
		logger: logger,
	}
}

// Tier selects the model quality level.
type Tier int

const (
	// TierStandard is the free-tier model.
	TierStandard Tier = iota
	// TierPremium is the subscriber model.
	TierPremium
)

func (c *Client) modelFor(tier Tier) string {
	if tier == TierPremium {
		return c.cfg.PremiumModel
	}
	return c.cfg.DefaultModel
}

// Sentinel errors used to classify API failures internally. They never reach
// callers: Complete and GenerateImage translate them to user-facing text.
var (
	errRateLimited = errors.New("openai: rate limited")
	errConnection  = errors.New("openai: connection failed")
	errTimeout     = errors.New("openai: request timed out")
)

// classifyTransport maps an http.Client.Do error to one of the transport
// sentinels.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	return fmt.Errorf("%w: %v", errConnection, err)
}

// postJSON sends one API request and decodes the response body into out.
// HTTP 429 maps to errRateLimited, transport failures to the connection and
// timeout sentinels, everything else to a plain error.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("openai: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errRateLimited
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("openai: decode API response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}
