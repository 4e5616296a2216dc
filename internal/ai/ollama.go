package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// defaultLocalModels is the fallback list when the tags endpoint is
// unreachable inside the probe window.
var defaultLocalModels = []string{"llama3.2", "mistral", "qwen2.5"}

// Ollama talks to a local Ollama-compatible model server.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama builds the local provider. Model may be empty; the first model
// reported by the server (or the fallback list) is used.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(),
	}
}

func (o *Ollama) Name() string   { return "ollama" }
func (o *Ollama) BatchSize() int { return localBatchSize }

// Models discovers installed models via the tags endpoint. The probe is
// cancelled after two seconds; on any failure the configured defaults are
// returned so generation can still be attempted.
func (o *Ollama) Models(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return defaultLocalModels
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return defaultLocalModels
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return defaultLocalModels
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil || len(tags.Models) == 0 {
		return defaultLocalModels
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names
}

// Available reports whether the local server answered the probe itself.
func (o *Ollama) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate calls the streamed generate endpoint and concatenates the chunks.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	model := o.model
	if model == "" {
		models := o.Models(ctx)
		model = models[0]
	}

	body, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &ProviderError{Provider: o.Name(), Status: resp.StatusCode, Message: string(payload)}
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("ollama stream: %w", err)
	}
	return out.String(), nil
}
