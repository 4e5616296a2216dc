package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider is one question-generation backend.
type Provider interface {
	Name() string
	// Generate returns the raw model response for a prompt. Responses go
	// through RepairJSON before anything trusts them.
	Generate(ctx context.Context, prompt string) (string, error)
	// BatchSize is the provider-specific cap on questions per call during
	// spreadsheet imports.
	BatchSize() int
}

// ProviderError carries enough HTTP detail for the caller to pick between
// toast, retry, and give-up.
type ProviderError struct {
	Provider   string
	Status     int
	RetryAfter string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status == http.StatusTooManyRequests {
		return fmt.Sprintf("%s rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s request failed (%d): %s", e.Provider, e.Status, e.Message)
}

// RateLimited reports whether an error is a provider 429.
func (e *ProviderError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

const (
	// hostedBatchSize caps questions per call for the hosted providers.
	hostedBatchSize = 10
	// localBatchSize caps questions per call for local models.
	localBatchSize = 5
	// probeTimeout bounds availability probes against the local server.
	probeTimeout = 2 * time.Second
	// requestTimeout bounds generation requests.
	requestTimeout = 120 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}
