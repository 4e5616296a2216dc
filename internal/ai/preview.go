package ai

import (
	"context"
	"fmt"

	"quizhub/internal/domain"
)

// PreviewItem is one generated question awaiting review.
type PreviewItem struct {
	Question domain.Question `json:"question"`
	Selected bool            `json:"selected"`
}

// Preview models the review step between generation and the quiz editor:
// per-item selection, edit, regeneration, and bulk toggles. Confirm promotes
// the selected questions.
type Preview struct {
	items    []PreviewItem
	pipeline *Pipeline
	request  Request
}

// NewPreview seeds a preview with every question selected.
func NewPreview(questions []domain.Question, pipeline *Pipeline, req Request) *Preview {
	items := make([]PreviewItem, len(questions))
	for i, q := range questions {
		items[i] = PreviewItem{Question: q, Selected: true}
	}
	return &Preview{items: items, pipeline: pipeline, request: req}
}

// Items returns the current preview state.
func (p *Preview) Items() []PreviewItem {
	out := make([]PreviewItem, len(p.items))
	copy(out, p.items)
	return out
}

// SetSelected toggles a single item.
func (p *Preview) SetSelected(index int, selected bool) error {
	if index < 0 || index >= len(p.items) {
		return fmt.Errorf("preview index %d out of range", index)
	}
	p.items[index].Selected = selected
	return nil
}

// SelectAll marks every item selected or deselected.
func (p *Preview) SelectAll(selected bool) {
	for i := range p.items {
		p.items[i].Selected = selected
	}
}

// Edit replaces an item's question after validating the edit.
func (p *Preview) Edit(index int, edited domain.Question) error {
	if index < 0 || index >= len(p.items) {
		return fmt.Errorf("preview index %d out of range", index)
	}
	if errs := domain.Validate(edited); len(errs) > 0 {
		return fmt.Errorf("invalid edit: %s", errs[0])
	}
	p.items[index].Question = edited
	return nil
}

// Regenerate replaces one item with a freshly generated question of the same
// kind, steering the model away from the other prompts already in the set.
func (p *Preview) Regenerate(ctx context.Context, index int) error {
	if index < 0 || index >= len(p.items) {
		return fmt.Errorf("preview index %d out of range", index)
	}
	avoid := make([]string, 0, len(p.items))
	for i, item := range p.items {
		if i != index {
			avoid = append(avoid, item.Question.Prompt)
		}
	}
	q, err := p.pipeline.Regenerate(ctx, p.request, p.items[index].Question.Kind, avoid)
	if err != nil {
		return err
	}
	p.items[index].Question = q
	p.items[index].Selected = true
	return nil
}

// Confirm returns the selected questions in order.
func (p *Preview) Confirm() []domain.Question {
	var out []domain.Question
	for _, item := range p.items {
		if item.Selected {
			out = append(out, item.Question)
		}
	}
	return out
}
