/**
 * @description
 * This package provides a client for the content generation service that turns a
 * surprise song prompt into an audio file.
 *
 * Key features:
 * - POST {baseURL}/generate with the prompt and target duration.
 * - One retry on transport errors and 5xx responses. 4xx responses fail immediately.
 * - Callers bound the whole call with their context deadline.
 */
package audioclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no base URL was provided.
var ErrNotConfigured = errors.New("audio service URL not configured")

const maxAttempts = 2

// Client is a client for the audio generation API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewClient creates a new audio generation client.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retryDelay: 500 * time.Millisecond,
		logger:     logger,
	}
}

type generateRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
}

type generateResponse struct {
	AudioURL string `json:"audio_url"`
}

// statusError is a non-2xx answer from the audio service.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("audio service error: status %d, body: %s", e.code, e.body)
}

// GenerateAudio requests an audio track for prompt and returns its URL.
func (c *Client) GenerateAudio(ctx context.Context, prompt string, durationSeconds int) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		audioURL, err := c.generate(ctx, prompt, durationSeconds)
		if err == nil {
			return audioURL, nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		c.logger.Warn("audio generation failed, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return "", lastErr
}

func (c *Client) generate(ctx context.Context, prompt string, durationSeconds int) (string, error) {
	payload, err := json.Marshal(generateRequest{Prompt: prompt, DurationSeconds: durationSeconds})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response body: %w", err)
	}
	if strings.TrimSpace(out.AudioURL) == "" {
		return "", errors.New("audio service returned no audio_url")
	}
	return out.AudioURL, nil
}

// transportError is a failure to get any answer at all.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("http request failed: %v", e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	var te *transportError
	return errors.As(err, &te)
}
