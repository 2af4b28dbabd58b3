// Package llmclient wraps the external LLM completion endpoint the wave-3
// escalation detector calls when heuristic confidence lands in the
// ambiguous band. A circuit breaker shields the pipeline from a flaky or
// down provider; callers should treat every error as "no contribution,
// proceed" rather than a hard failure.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ocx/sentinel/internal/circuitbreaker"
)

// Request is the classification task sent to the provider. Prompt must
// already be redacted — no raw IP or verbatim UA string — per the caller's
// responsibility.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Verdict is the parsed classification response.
type Verdict struct {
	IsBot      bool
	Confidence float64
	BotType    string
	Reasoning  string
	Pattern    string
}

type completionPayload struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

type rawVerdict struct {
	IsBot      bool    `json:"is_bot"`
	Confidence float64 `json:"confidence"`
	BotType    string  `json:"bot_type"`
	Reasoning  string  `json:"reasoning"`
	Pattern    string  `json:"pattern"`
}

// Client is the hot-path completion caller. Construct with New; Initialise
// once before the first Complete call.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker

	ready bool
}

// New builds a client for endpoint, guarded by a circuit breaker with
// failureThreshold consecutive failures before tripping open for
// resetTimeout.
func New(endpoint, apiKey, model string, failureThreshold uint32, resetTimeout time.Duration) *Client {
	breakers := circuitbreaker.NewSentinelCircuitBreakers(failureThreshold, resetTimeout)
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		breaker:    breakers.LLM,
	}
}

// Initialise marks the client ready when an endpoint is configured; it does
// not contact the endpoint, so reachability is not checked. With no endpoint
// IsReady reports false and the escalation detector treats that as "not
// enabled".
func (c *Client) Initialise(ctx context.Context) {
	if c.endpoint == "" {
		slog.Info("llmclient: no endpoint configured, LLM escalation disabled")
		c.ready = false
		return
	}
	c.ready = true
}

// IsReady reports whether Complete should be attempted at all.
func (c *Client) IsReady() bool {
	return c.ready
}

// Complete sends req to the provider and parses its response into a
// Verdict. Any failure (timeout, transport error, malformed JSON, an
// out-of-range field) returns a non-nil error; callers must drop the
// contribution and proceed, never propagate upstream.
func (c *Client) Complete(ctx context.Context, req Request) (Verdict, error) {
	if !c.ready {
		return Verdict{}, fmt.Errorf("llmclient: not ready")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := circuitbreaker.ExecuteWithFallback(
		c.breaker,
		func() (Verdict, error) { return c.doComplete(reqCtx, req) },
		func(err error) (Verdict, error) { return Verdict{}, err },
	)
	return result, err
}

func (c *Client) doComplete(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(completionPayload{
		Model:       c.model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("llmclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Verdict{}, fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Verdict{}, fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Verdict{}, fmt.Errorf("llmclient: provider returned %d", resp.StatusCode)
	}

	text, err := extractCompletionText(raw)
	if err != nil {
		return Verdict{}, err
	}

	return parseVerdict(text)
}

// extractCompletionText accepts either a raw JSON verdict body or a
// chat/completion envelope wrapping one, so the client tolerates either a
// plain classification endpoint or a generic completions API in front of it.
func extractCompletionText(raw []byte) (string, error) {
	var env completionResponse
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Choices) > 0 && env.Choices[0].Text != "" {
		return env.Choices[0].Text, nil
	}
	return string(raw), nil
}

// parseVerdict strips markdown code fences, isolates the outermost {...}
// substring, and validates the decoded fields per spec: confidence must lie
// in [0,1] and is_bot must be a real boolean.
func parseVerdict(text string) (Verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("llmclient: no JSON object in response")
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &rv); err != nil {
		return Verdict{}, fmt.Errorf("llmclient: decode verdict: %w", err)
	}
	if rv.Confidence < 0 || rv.Confidence > 1 {
		return Verdict{}, fmt.Errorf("llmclient: confidence %f out of range", rv.Confidence)
	}

	return Verdict{
		IsBot:      rv.IsBot,
		Confidence: rv.Confidence,
		BotType:    rv.BotType,
		Reasoning:  rv.Reasoning,
		Pattern:    rv.Pattern,
	}, nil
}
