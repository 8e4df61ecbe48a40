// Package gateway forwards transcripts to the downstream message
// gateway over its tool-invocation endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

const maxResponseBodyBytes = 1 << 16

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// HTTPDoer is the client seam, satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts transcripts as sessions_send tool invocations. Network
// failures and 5xx responses are retried with exponential backoff; any
// 4xx response is terminal.
type Client struct {
	url         string
	token       string
	sessionKey  string
	attempts    int
	client      HTTPDoer
	retryPolicy RetryPolicy
	logger      core.Logger
}

func NewClient(cfg core.GatewayConfig, logger core.Logger) *Client {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		url:         strings.TrimSpace(cfg.URL),
		token:       strings.TrimSpace(cfg.Token),
		sessionKey:  strings.TrimSpace(cfg.SessionKey),
		attempts:    attempts,
		client:      &http.Client{Timeout: cfg.Timeout},
		retryPolicy: ExponentialRetryPolicy{},
		logger:      glog.Ensure(logger),
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(client HTTPDoer) *Client {
	if c != nil && client != nil {
		c.client = client
	}
	return c
}

// WithRetryPolicy overrides the backoff schedule.
func (c *Client) WithRetryPolicy(policy RetryPolicy) *Client {
	if c != nil && policy != nil {
		c.retryPolicy = policy
	}
	return c
}

type toolInvocation struct {
	Tool string   `json:"tool"`
	Args toolArgs `json:"args"`
}

type toolArgs struct {
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
}

func (c *Client) Send(ctx context.Context, text string) error {
	if c == nil {
		return gatewayError("client is nil")
	}
	if c.url == "" {
		return gatewayError("url is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return gatewayError("message text is empty")
	}

	body, err := json.Marshal(toolInvocation{
		Tool: "sessions_send",
		Args: toolArgs{SessionKey: c.sessionKey, Message: text},
	})
	if err != nil {
		return gatewayWrapError(err, "encoding request failed")
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := c.post(ctx, body)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("gateway send recovered", "attempt", attempt)
			}
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		delay := c.retryPolicy.NextDelay(attempt)
		c.logger.Warn("gateway send failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return gatewayWrapError(sleepErr, "send aborted during backoff")
		}
	}
	return gatewayWrapError(lastErr, fmt.Sprintf("send failed after %d attempts", c.attempts))
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return gatewayWrapError(err, "building request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return retryableError(err, "request failed")
	}
	defer res.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode >= 500:
		return retryableStatusError(res.StatusCode, payload)
	default:
		return terminalStatusError(res.StatusCode, payload)
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if retryable, ok := richErr.Metadata["retryable"].(bool); ok {
			return retryable
		}
	}
	return false
}

func gatewayError(message string) error {
	return goerrors.New(fmt.Sprintf("gateway: %s", message), goerrors.CategoryOperation).
		WithTextCode(core.RelayErrorUpstreamFailed)
}

func gatewayWrapError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("gateway: %s", message)).
		WithTextCode(core.RelayErrorUpstreamFailed)
}

func retryableError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("gateway: %s", message)).
		WithTextCode(core.RelayErrorUpstreamFailed).
		WithMetadata(map[string]any{"retryable": true})
}

func retryableStatusError(status int, payload []byte) error {
	return goerrors.New(fmt.Sprintf("gateway: upstream answered %d", status), goerrors.CategoryExternal).
		WithTextCode(core.RelayErrorUpstreamFailed).
		WithMetadata(map[string]any{"retryable": true, "status": status, "body": string(payload)})
}

func terminalStatusError(status int, payload []byte) error {
	return goerrors.New(fmt.Sprintf("gateway: upstream rejected request with %d", status), goerrors.CategoryExternal).
		WithTextCode(core.RelayErrorUpstreamFailed).
		WithMetadata(map[string]any{"retryable": false, "status": status, "body": string(payload)})
}

var _ core.GatewaySender = (*Client)(nil)
