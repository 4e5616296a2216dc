package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Capabilities is the per-kind behavior table. All kind-specific decisions
// (payload validation, answer decoding, scoring, default payloads) are defined
// here so no kind switch exists anywhere else.
type Capabilities struct {
	// Validate appends human-readable payload errors.
	Validate func(q Question) []string
	// DecodeAnswer turns a raw submitted value into the typed answer for the
	// kind (int, []int, bool, or float64). Wrong shapes return ErrInvalidAnswer.
	DecodeAnswer func(raw json.RawMessage, q Question) (any, error)
	// Score returns 0, 1, or a partial-credit fraction in (0,1).
	Score func(submitted any, q Question) float64
	// DefaultPayload seeds a new question of the kind in the editor.
	DefaultPayload func() Question
}

var registry = map[QuestionKind]Capabilities{
	KindMultipleChoice: {
		Validate:       validateMultipleChoice,
		DecodeAnswer:   decodeIntAnswer,
		Score:          scoreMultipleChoice,
		DefaultPayload: defaultMultipleChoice,
	},
	KindMultipleCorrect: {
		Validate:       validateMultipleCorrect,
		DecodeAnswer:   decodeIntSliceAnswer,
		Score:          scoreMultipleCorrect,
		DefaultPayload: defaultMultipleCorrect,
	},
	KindTrueFalse: {
		Validate:       validateTrueFalse,
		DecodeAnswer:   decodeBoolAnswer,
		Score:          scoreTrueFalse,
		DefaultPayload: defaultTrueFalse,
	},
	KindNumeric: {
		Validate:       validateNumeric,
		DecodeAnswer:   decodeFloatAnswer,
		Score:          scoreNumeric,
		DefaultPayload: defaultNumeric,
	},
	KindOrdering: {
		Validate:       validateOrdering,
		DecodeAnswer:   decodeIntSliceAnswer,
		Score:          scoreOrdering,
		DefaultPayload: defaultOrdering,
	},
}

// ForKind looks up the capability set. An unknown kind is a programming error
// because every question reaching this point passed CanonicalKind on decode.
func ForKind(kind QuestionKind) Capabilities {
	caps, ok := registry[kind]
	if !ok {
		panic(fmt.Sprintf("unregistered question kind %q", kind))
	}
	return caps
}

// Validate checks a question's payload invariants. An empty slice means valid.
func Validate(q Question) []string {
	caps, ok := registry[q.Kind]
	if !ok {
		return []string{fmt.Sprintf("unknown question type %q", q.Kind)}
	}
	var errs []string
	if strings.TrimSpace(q.Prompt) == "" {
		errs = append(errs, "question text is empty")
	}
	if q.TimeLimitSeconds != 0 && (q.TimeLimitSeconds < MinTimeLimitSeconds || q.TimeLimitSeconds > MaxTimeLimitSeconds) {
		errs = append(errs, fmt.Sprintf("time limit must be between %d and %d seconds", MinTimeLimitSeconds, MaxTimeLimitSeconds))
	}
	return append(errs, caps.Validate(q)...)
}

// Score decodes and scores a raw submission in one step.
// Returns the typed answer alongside the correctness fraction.
func Score(raw json.RawMessage, q Question) (any, float64, error) {
	caps := ForKind(q.Kind)
	answer, err := caps.DecodeAnswer(raw, q)
	if err != nil {
		return nil, 0, err
	}
	return answer, caps.Score(answer, q), nil
}

// --- validation ---

func validateOptionCount(q Question, max int) []string {
	var errs []string
	if len(q.Options) < MinOptions || len(q.Options) > max {
		errs = append(errs, fmt.Sprintf("needs between %d and %d options, has %d", MinOptions, max, len(q.Options)))
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			errs = append(errs, fmt.Sprintf("option %d is empty", i))
		}
	}
	return errs
}

func validateMultipleChoice(q Question) []string {
	errs := validateOptionCount(q, MaxOptions)
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		errs = append(errs, fmt.Sprintf("correct answer index %d is out of range", q.CorrectIndex))
	}
	return errs
}

func validateMultipleCorrect(q Question) []string {
	errs := validateOptionCount(q, MaxOptions)
	if len(q.CorrectIndices) == 0 {
		errs = append(errs, "needs at least one correct answer")
	}
	seen := make(map[int]bool, len(q.CorrectIndices))
	for _, idx := range q.CorrectIndices {
		if idx < 0 || idx >= len(q.Options) {
			errs = append(errs, fmt.Sprintf("correct answer index %d is out of range", idx))
		}
		if seen[idx] {
			errs = append(errs, fmt.Sprintf("correct answer index %d is duplicated", idx))
		}
		seen[idx] = true
	}
	return errs
}

func validateTrueFalse(q Question) []string {
	// Canonical options are always ["True","False"]; nothing else to check.
	return nil
}

func validateNumeric(q Question) []string {
	var errs []string
	if math.IsNaN(q.CorrectNumber) || math.IsInf(q.CorrectNumber, 0) {
		errs = append(errs, "correct number must be finite")
	}
	if q.Tolerance < 0 {
		errs = append(errs, "tolerance must not be negative")
	}
	return errs
}

func validateOrdering(q Question) []string {
	errs := validateOptionCount(q, MaxOrderingItems)
	if len(q.CorrectOrder) != len(q.Options) {
		errs = append(errs, fmt.Sprintf("correct order has %d entries for %d items", len(q.CorrectOrder), len(q.Options)))
		return errs
	}
	seen := make([]bool, len(q.Options))
	for _, idx := range q.CorrectOrder {
		if idx < 0 || idx >= len(q.Options) {
			errs = append(errs, fmt.Sprintf("order index %d is out of range", idx))
			return errs
		}
		if seen[idx] {
			errs = append(errs, fmt.Sprintf("order index %d is repeated", idx))
			return errs
		}
		seen[idx] = true
	}
	return errs
}

// --- answer decoding ---

func decodeIntAnswer(raw json.RawMessage, q Question) (any, error) {
	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	if idx < 0 || idx >= len(q.Options) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidAnswer, idx)
	}
	return idx, nil
}

func decodeIntSliceAnswer(raw json.RawMessage, q Question) (any, error) {
	var indices []int
	if err := json.Unmarshal(raw, &indices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(q.Options) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidAnswer, idx)
		}
	}
	return indices, nil
}

func decodeBoolAnswer(raw json.RawMessage, _ Question) (any, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%w: expected boolean", ErrInvalidAnswer)
}

func decodeFloatAnswer(raw json.RawMessage, _ Question) (any, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: expected number", ErrInvalidAnswer)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: number must be finite", ErrInvalidAnswer)
	}
	return f, nil
}

// --- scoring ---

func scoreMultipleChoice(submitted any, q Question) float64 {
	if idx, ok := submitted.(int); ok && idx == q.CorrectIndex {
		return 1
	}
	return 0
}

func scoreMultipleCorrect(submitted any, q Question) float64 {
	indices, ok := submitted.([]int)
	if !ok || len(indices) != len(q.CorrectIndices) {
		return 0
	}
	want := make(map[int]bool, len(q.CorrectIndices))
	for _, idx := range q.CorrectIndices {
		want[idx] = true
	}
	for _, idx := range indices {
		if !want[idx] {
			return 0
		}
	}
	return 1
}

func scoreTrueFalse(submitted any, q Question) float64 {
	if b, ok := submitted.(bool); ok && b == q.CorrectBoolean {
		return 1
	}
	return 0
}

func scoreNumeric(submitted any, q Question) float64 {
	f, ok := submitted.(float64)
	if !ok {
		return 0
	}
	if math.Abs(f-q.CorrectNumber) <= q.Tolerance {
		return 1
	}
	return 0
}

// scoreOrdering grants partial credit: the fraction of items placed at their
// correct position.
func scoreOrdering(submitted any, q Question) float64 {
	order, ok := submitted.([]int)
	if !ok || len(order) != len(q.CorrectOrder) {
		return 0
	}
	hits := 0
	for i := range order {
		if order[i] == q.CorrectOrder[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(q.CorrectOrder))
}

// --- editor defaults ---

func defaultMultipleChoice() Question {
	return Question{
		Kind:       KindMultipleChoice,
		Difficulty: DifficultyMedium,
		Options:    []string{"", "", "", ""},
	}
}

func defaultMultipleCorrect() Question {
	return Question{
		Kind:       KindMultipleCorrect,
		Difficulty: DifficultyMedium,
		Options:    []string{"", "", "", ""},
	}
}

func defaultTrueFalse() Question {
	return Question{
		Kind:       KindTrueFalse,
		Difficulty: DifficultyMedium,
		Options:    []string{"True", "False"},
	}
}

func defaultNumeric() Question {
	return Question{Kind: KindNumeric, Difficulty: DifficultyMedium}
}

func defaultOrdering() Question {
	return Question{
		Kind:         KindOrdering,
		Difficulty:   DifficultyMedium,
		Options:      []string{"", ""},
		CorrectOrder: []int{0, 1},
	}
}
