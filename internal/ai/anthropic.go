package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Anthropic is the Claude-family hosted provider. It relies on assistant
// prefill: the request ends with an assistant turn that already starts with
// "[", so the continuation is guaranteed to be JSON-leading.
type Anthropic struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewAnthropic(baseURL, apiKey, model string) *Anthropic {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(),
	}
}

func (a *Anthropic) Name() string   { return "anthropic" }
func (a *Anthropic) BatchSize() int { return hostedBatchSize }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":      a.model,
		"max_tokens": 8192,
		"messages": []anthropicMessage{
			{Role: "user", Content: prompt},
			{Role: "assistant", Content: "["},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:   a.Name(),
			Status:     resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Message:    string(payload[:min(len(payload), 512)]),
		}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("anthropic decode: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}
	// re-attach the prefilled opening bracket
	return "[" + parsed.Content[0].Text, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
