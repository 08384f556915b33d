// Package pushover implements the Pushover message API sender
package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/notifier"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the provider's message API.
const DefaultEndpoint = "https://api.pushover.net/1/messages.json"

// URLTitle labels the supplementary link.
const URLTitle = "More info"

const maxResponseBytes = 64 << 10

// DefaultConfig returns the client defaults. Retries are off because the
// provider does not deduplicate and a retried request may push twice.
func DefaultConfig() notifier.Config {
	return notifier.Config{
		Endpoint:      DefaultEndpoint,
		Timeout:       5 * time.Second,
		RatePerSec:    2,
		Burst:         5,
		MaxAttempts:   1,
		RetryBase:     500 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
	}
}

// Client implements the Sender interface for the Pushover API
type Client struct {
	endpoint      string
	timeout       time.Duration
	maxAttempts   int
	retryBase     time.Duration
	retryMaxDelay time.Duration
	limiter       *rate.Limiter
	client        *http.Client
	logger        *zap.Logger
}

// New creates a new Pushover client. A zero RatePerSec disables rate limiting.
func New(cfg notifier.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	c := &Client{
		endpoint:      cfg.Endpoint,
		timeout:       cfg.Timeout,
		maxAttempts:   cfg.MaxAttempts,
		retryBase:     cfg.RetryBase,
		retryMaxDelay: cfg.RetryMaxDelay,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}

	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.RatePerSec))
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	return c
}

func (c *Client) Name() string { return "pushover" }

// Deliver posts the payload, retrying transport failures, 429 and 5xx
// responses up to the configured attempt count.
func (c *Client) Deliver(ctx context.Context, payload core.Payload, creds core.Credentials) (core.Receipt, error) {
	form := buildForm(payload, creds)
	receipt := core.Receipt{AppRemaining: -1}

	var lastErr *core.Error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		receipt.Attempts = attempt

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return receipt, core.WrapError(core.ErrTransportFailure,
					fmt.Errorf("pushover: waiting for rate limiter: %w", err))
			}
		}

		lastErr = c.post(ctx, form, &receipt)
		if lastErr == nil {
			return receipt, nil
		}

		if attempt >= c.maxAttempts || !retryable(lastErr, receipt.StatusCode) {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Debug("pushover delivery failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return receipt, core.WrapError(core.ErrTransportFailure,
				fmt.Errorf("pushover: cancelled during retry backoff: %w", ctx.Err()))
		case <-timer.C:
		}
	}

	return receipt, lastErr
}

// buildForm renders the provider form fields. Sound and priority fall back
// to their defaults.
func buildForm(payload core.Payload, creds core.Credentials) url.Values {
	urlTitle := payload.URLTitle
	if urlTitle == "" {
		urlTitle = URLTitle
	}
	return url.Values{
		"user":      {creds.UserKey},
		"token":     {creds.APIToken},
		"message":   {payload.Body},
		"title":     {payload.Title},
		"url":       {payload.URL},
		"url_title": {urlTitle},
		"sound":     {string(payload.Sound.OrDefault())},
		"priority":  {payload.Priority.FormValue()},
	}
}

// apiResponse is the provider's JSON reply.
type apiResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func (c *Client) post(ctx context.Context, form url.Values, receipt *core.Receipt) *core.Error {
	// The receipt describes the last response only.
	receipt.StatusCode = 0
	receipt.RequestID = ""
	receipt.Diagnostic = ""

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return core.WrapError(core.ErrTransportFailure, fmt.Errorf("pushover: failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrTransportFailure, fmt.Errorf("pushover: request failed: %w", err))
	}
	defer resp.Body.Close()

	receipt.StatusCode = resp.StatusCode
	if v := resp.Header.Get("X-Limit-App-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			receipt.AppRemaining = n
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.WrapError(core.ErrTransportFailure, fmt.Errorf("pushover: reading response: %w", err))
	}

	var result apiResponse
	decodeErr := json.Unmarshal(raw, &result)
	receipt.RequestID = result.Request

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		receipt.Diagnostic = diagnostic(result, resp.Status)
		return core.WrapError(core.ErrProviderRejected,
			fmt.Errorf("pushover: API error (status %d): %s", resp.StatusCode, receipt.Diagnostic))
	}

	if decodeErr != nil {
		receipt.Diagnostic = "unreadable response body"
		return core.WrapError(core.ErrProviderRejected,
			fmt.Errorf("pushover: decoding response: %w", decodeErr))
	}

	if result.Status != 1 {
		receipt.Diagnostic = diagnostic(result, fmt.Sprintf("status %d", result.Status))
		return core.WrapError(core.ErrProviderRejected,
			fmt.Errorf("pushover: API error: %s", receipt.Diagnostic))
	}

	return nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryBase << (attempt - 1)
	if d <= 0 || d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

func retryable(err *core.Error, status int) bool {
	if err.Is(core.ErrTransportFailure) {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func diagnostic(r apiResponse, fallback string) string {
	if len(r.Errors) > 0 {
		return strings.Join(r.Errors, "; ")
	}
	return fallback
}
