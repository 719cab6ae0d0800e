package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AIResponse is the bridge's normalized reply shape (spec.md §4.4).
type AIResponse struct {
	DraftText          string
	ModelID            string
	ProcessingDuration time.Duration
	Timestamp          time.Time
	FlaggedSymptoms    []string
	SuggestedSpecialty string
	Source             string // "live", "cache" or "fallback"
}

// llmMessage and llmRequestBody mirror the outbound wire contract named in
// spec.md §6 exactly: {model, messages:[system,user], temperature,
// max_tokens}. The concrete vendor is explicitly out of scope (§1); this
// is a generic client against that documented shape, not any named
// provider's SDK.
type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmRequestBody struct {
	Model       string       `json:"model"`
	Messages    []llmMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type llmResponseBody struct {
	Content         string   `json:"content"`
	ModelID         string   `json:"model"`
	FlaggedSymptoms []string `json:"flagged_symptoms"`
	SuggestedSpecialty string `json:"suggested_specialty"`
}

// LLMCaller is the AI Bridge's sole dependency on the external vendor,
// kept as a narrow interface so the concrete LLM API (out of scope per
// spec.md §1) is swappable and testable behind a fake.
type LLMCaller interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) (AIResponse, error)
}

// httpLLMCaller is a generic HTTP implementation of the §6 outbound
// contract, grounded on the teacher's prediction_service.go http.Post
// call, generalized from a fixed ML-service URL to any endpoint serving
// the documented JSON shape.
type httpLLMCaller struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPLLMCaller(endpoint, model string, timeout time.Duration) LLMCaller {
	return &httpLLMCaller{endpoint: endpoint, model: model, client: &http.Client{Timeout: timeout}}
}

// retryableHTTPError carries the status code so the retry loop can tell
// "retry-worthy" (5xx, 429) apart from other 4xx failures.
type retryableHTTPError struct {
	StatusCode int
}

func (e *retryableHTTPError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// transportError marks a failure to even reach the upstream (connection
// refused, DNS failure, context deadline) — always retryable.
type transportError struct{ cause error }

func (e *transportError) Error() string { return fmt.Sprintf("transport error: %v", e.cause) }
func (e *transportError) Unwrap() error { return e.cause }

// invalidResponseError marks an upstream reply that doesn't fit the §6
// contract — never retryable, since retrying won't fix a malformed body.
type invalidResponseError struct{ cause error }

func (e *invalidResponseError) Error() string { return fmt.Sprintf("invalid response: %v", e.cause) }
func (e *invalidResponseError) Unwrap() error { return e.cause }

func (c *httpLLMCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (AIResponse, error) {
	start := time.Now()
	body := llmRequestBody{
		Model: c.model,
		Messages: []llmMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return AIResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return AIResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return AIResponse{}, &transportError{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return AIResponse{}, &retryableHTTPError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return AIResponse{}, &invalidResponseError{cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var out llmResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return AIResponse{}, &invalidResponseError{cause: err}
	}

	return AIResponse{
		DraftText:          out.Content,
		ModelID:            out.ModelID,
		ProcessingDuration: time.Since(start),
		Timestamp:          time.Now().UTC(),
		FlaggedSymptoms:    out.FlaggedSymptoms,
		SuggestedSpecialty: out.SuggestedSpecialty,
		Source:             "live",
	}, nil
}

// isRetryable implements spec.md §4.4's "retry only on transport errors and
// HTTP status ≥ 500 or 429" — an invalidResponseError (malformed body,
// non-retryable status) is deliberately excluded.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *retryableHTTPError
	var transportErr *transportError
	if errors.As(err, &httpErr) {
		return true
	}
	if errors.As(err, &transportErr) {
		return true
	}
	return false
}
