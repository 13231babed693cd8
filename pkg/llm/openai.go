package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	coreerrors "github.com/mobilityedgeai/chatplanilha/pkg/errors"
)

// OpenAIConfig configures the OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Temperature float64
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// Transient failures (timeouts, rate limiting, 5xx) are retried with
// exponential backoff up to MaxRetries; malformed requests are not retried.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient creates a client with documented defaults: 30s timeout,
// 2 retries, 500ms base backoff.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", coreerrors.New(coreerrors.CodeExternalService, "language model API key not configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInternal, "failed to marshal model request")
	}

	backoff := c.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					timeoutErr := coreerrors.ErrRequestTimeout.WithDetail("stage", "model_call")
					timeoutErr.Cause = ctx.Err()
					return "", timeoutErr
				}
				return "", coreerrors.Wrap(ctx.Err(), coreerrors.CodeDeadlineExceeded, "model call canceled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, retryable, err := c.doRequest(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	unavailable := coreerrors.ErrModelUnavailable.WithDetail("attempts", c.cfg.MaxRetries+1)
	unavailable.Cause = lastErr
	return "", unavailable
}

func (c *OpenAIClient) doRequest(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", isRetryableNetErr(err), err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, coreerrors.Newf(coreerrors.CodeExternalService, "model endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, coreerrors.Newf(coreerrors.CodeExternalService, "model endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, coreerrors.Wrap(err, coreerrors.CodeExternalService, "failed to decode model response")
	}
	if parsed.Error != nil {
		return "", false, coreerrors.Newf(coreerrors.CodeExternalService, "model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, coreerrors.New(coreerrors.CodeExternalService, "model returned no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func isRetryableNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
