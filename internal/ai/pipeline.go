package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"quizhub/internal/domain"
)

// maxAttempts bounds generation retries after parse failures or empty yields.
const maxAttempts = 3

// Pipeline runs the full generation flow against one provider.
type Pipeline struct {
	provider Provider
	prompts  *PromptBuilder
}

func NewPipeline(provider Provider) *Pipeline {
	return &Pipeline{provider: provider, prompts: NewPromptBuilder()}
}

// Generate produces up to req.Count validated questions. The requested count
// is a hard upper bound; fewer questions is a partial success, not an error.
// Rate limits are surfaced immediately with no automatic retry; other
// failures retry with a reduced prompt.
func (p *Pipeline) Generate(ctx context.Context, req Request) ([]domain.Question, error) {
	if req.Analysis == (Analysis{}) {
		req.Analysis = AnalyzeContent(req.Content)
	}
	if req.Count <= 0 {
		req.Count = 5
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		prompt := p.prompts.Primary(req)
		if attempt > 0 {
			prompt = p.prompts.Retry(req, attempt)
		}

		response, err := p.provider.Generate(ctx, prompt)
		if err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) && pe.RateLimited() {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("ai: %s attempt %d failed: %v", p.provider.Name(), attempt+1, err)
			lastErr = err
			continue
		}

		items, err := RepairJSON(response)
		if err != nil {
			log.Printf("ai: attempt %d unparseable: %v", attempt+1, &RepairError{Sample: response, Err: err})
			lastErr = err
			continue
		}

		questions := Normalize(items)
		if len(questions) == 0 {
			lastErr = fmt.Errorf("no valid questions in response")
			continue
		}
		if len(questions) > req.Count {
			questions = questions[:req.Count]
		}
		return questions, nil
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", maxAttempts, lastErr)
}

// Regenerate produces a single replacement question of the given kind,
// avoiding the listed existing prompts.
func (p *Pipeline) Regenerate(ctx context.Context, req Request, kind domain.QuestionKind, avoid []string) (domain.Question, error) {
	if req.Analysis == (Analysis{}) {
		req.Analysis = AnalyzeContent(req.Content)
	}

	prompt := p.prompts.SingleQuestion(req, kind, avoid)
	response, err := p.provider.Generate(ctx, prompt)
	if err != nil {
		return domain.Question{}, err
	}
	items, err := RepairJSON(response)
	if err != nil {
		return domain.Question{}, &RepairError{Sample: response, Err: err}
	}
	questions := Normalize(items)
	if len(questions) == 0 {
		return domain.Question{}, fmt.Errorf("regeneration yielded no valid question")
	}
	return questions[0], nil
}

// BatchState tracks progress through a spreadsheet import that exceeds the
// provider's batch size.
type BatchState struct {
	TotalQuestions int `json:"totalQuestions"`
	BatchSize      int `json:"batchSize"`
	TotalBatches   int `json:"totalBatches"`
	CurrentBatch   int `json:"currentBatch"`
}

// GenerateFromRows converts pre-labeled spreadsheet rows, batching when the
// row count exceeds the provider's batch size and concatenating the results.
// Per-batch failures are logged and skipped; the import is a partial success
// as long as any batch yields questions.
func (p *Pipeline) GenerateFromRows(ctx context.Context, rows []string, languageISO string, onBatch func(BatchState)) ([]domain.Question, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to import")
	}

	size := p.provider.BatchSize()
	state := BatchState{
		TotalQuestions: len(rows),
		BatchSize:      size,
		TotalBatches:   (len(rows) + size - 1) / size,
	}

	var all []domain.Question
	var lastErr error
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		state.CurrentBatch++
		if onBatch != nil {
			onBatch(state)
		}

		prompt := p.prompts.ExcelImport(strings.Join(rows[start:end], "\n"), languageISO)
		response, err := p.provider.Generate(ctx, prompt)
		if err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) && pe.RateLimited() {
				return all, err
			}
			log.Printf("ai: batch %d/%d failed: %v", state.CurrentBatch, state.TotalBatches, err)
			lastErr = err
			continue
		}
		items, err := RepairJSON(response)
		if err != nil {
			log.Printf("ai: batch %d/%d unparseable: %v", state.CurrentBatch, state.TotalBatches, err)
			lastErr = err
			continue
		}
		all = append(all, Normalize(items)...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, fmt.Errorf("import produced no questions: %w", lastErr)
	}
	return all, nil
}
