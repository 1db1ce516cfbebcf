// Package llm implements streaming completion clients for OpenAI-compatible
// chat completion endpoints (OpenRouter, Groq).
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/service"
)

const (
	// DefaultTimeout bounds each streaming attempt, including reading the
	// full response body.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxAttempts is the per-call retry budget.
	DefaultMaxAttempts = 3

	defaultBaseURL = "https://api.openai.com/v1"
	dataPrefix     = "data: "
	doneMarker     = "[DONE]"
)

// backoffDelays are the fixed, unjittered waits between attempts.
var backoffDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// errSinkFailed marks a consumer-side write failure, which is never retried.
var errSinkFailed = errors.New("token sink failed")

// Config configures a completion client for one provider.
type Config struct {
	// Provider is a short name used in logs and stats ("openrouter", "groq").
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	// Timeout per attempt; DefaultTimeout when zero.
	Timeout time.Duration
}

// Client streams chat completions from a single provider with bounded
// exponential-backoff retry. It speaks the chat-completions SSE protocol
// directly so that a single malformed frame can be skipped instead of
// killing the stream. It implements service.CompletionClient.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	provider    string
	model       string
	maxAttempts int
	delays      []time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a completion client for the given provider endpoint.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxAttempts: DefaultMaxAttempts,
		delays:      backoffDelays,
		sleep:       sleepContext,
	}
}

// Provider returns the provider name this client talks to.
func (c *Client) Provider() string {
	return c.provider
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// streamFrame is the subset of a chat.completion.chunk frame we consume.
type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion streams tokens for prompt into sink.
//
// Each attempt opens a fresh streaming connection. Rate limiting (429) and
// transient failures (timeouts, 5xx) are retried with 1s/2s/4s backoff;
// when the final attempt is still rate limited the error matches
// domain.ErrRateLimited. Tokens forwarded by a failed attempt are discarded
// via sink.Reset before the retry, so output always restarts from empty.
// Other 4xx responses fail immediately without retrying. Cancellation of
// ctx stops the stream and the retry sequence at once.
func (c *Client) StreamCompletion(ctx context.Context, prompt string, opts service.CompletionOptions, sink service.TokenSink) error {
	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode completion request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.delays[attempt-1]); err != nil {
				return err
			}
			sink.Reset()
		}

		err := c.streamOnce(ctx, payload, sink)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errSinkFailed) {
			return err
		}

		switch classify(err) {
		case classFatal:
			return fmt.Errorf("%s completion request rejected: %w", c.provider, err)
		case classRateLimited:
			log.Printf("%s rate limited (attempt %d/%d)", c.provider, attempt+1, c.maxAttempts)
			lastErr = domain.NewDomainErrorWithCause(
				domain.ErrCodeRateLimited, domain.ErrRateLimited.Message, err)
		default:
			log.Printf("%s transient completion error (attempt %d/%d): %v",
				c.provider, attempt+1, c.maxAttempts, err)
			lastErr = domain.NewDomainErrorWithCause(
				domain.ErrCodeProviderUnavail, domain.ErrProviderUnavailable.Message, err)
		}
	}

	return lastErr
}

// streamOnce performs a single streaming attempt, forwarding tokens as they
// arrive. Both the provider's end-of-stream marker and a "stop" finish
// reason terminate the stream normally, as does a clean EOF. A frame that
// fails to decode is logged and skipped; one bad frame must not cost an
// otherwise healthy stream.
func (c *Client) streamOnce(ctx context.Context, payload []byte, sink service.TokenSink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if data == doneMarker {
			return nil
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			log.Printf("%s: skipping malformed stream frame: %v", c.provider, err)
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}
		choice := frame.Choices[0]
		if choice.Delta.Content != "" {
			if err := sink.Token(choice.Delta.Content); err != nil {
				// The consumer is gone; stop producing, do not retry.
				return fmt.Errorf("%w: %v", errSinkFailed, err)
			}
		}
		if choice.FinishReason == "stop" {
			return nil
		}
	}
	// A clean EOF without the marker is normal completion; a read error
	// mid-body is not.
	return scanner.Err()
}

// statusError is a non-200 completion response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("completion endpoint returned %d", e.status)
	}
	return fmt.Sprintf("completion endpoint returned %d: %s", e.status, e.body)
}

type errClass int

const (
	classTransient errClass = iota
	classRateLimited
	classFatal
)

// classify buckets an attempt failure. 429 retries like a transient error,
// non-429 client errors never retry, everything else (5xx, timeouts,
// connection resets) is transient.
func classify(err error) errClass {
	status := 0
	var respErr *statusError
	if errors.As(err, &respErr) {
		status = respErr.status
	}

	switch {
	case status == http.StatusTooManyRequests:
		return classRateLimited
	case status >= 500:
		return classTransient
	case status >= 400:
		return classFatal
	default:
		return classTransient
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
