package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionKind discriminates the question payload. The string values are the
// wire values used in persisted quiz documents and AI output.
type QuestionKind string

const (
	KindMultipleChoice  QuestionKind = "multiple-choice"
	KindMultipleCorrect QuestionKind = "multiple-correct"
	KindTrueFalse       QuestionKind = "true-false"
	KindNumeric         QuestionKind = "numeric"
	KindOrdering        QuestionKind = "ordering"
)

// Difficulty maps to a scoring multiplier at award time.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

const (
	MinTimeLimitSeconds = 5
	MaxTimeLimitSeconds = 300
	MinOptions          = 2
	MaxOptions          = 6
	MaxOrderingItems    = 8
)

// Question is the canonical in-memory question. Kind decides which of the
// correct-answer fields is meaningful; everything else is shared.
type Question struct {
	Kind             QuestionKind
	Prompt           string
	TimeLimitSeconds int
	Difficulty       Difficulty
	Explanation      string
	Image            string
	Video            string
	AnimationSource  string
	OptionFeedback   map[int]string

	// Options doubles as the orderable items for KindOrdering.
	Options []string

	CorrectIndex   int
	CorrectIndices []int
	CorrectBoolean bool
	CorrectNumber  float64
	Tolerance      float64
	CorrectOrder   []int
}

// questionDoc is the persisted/wire shape. The correct-answer fields are kept
// raw because the on-disk format is polymorphic per kind and has two legacy
// aliases (correctIndex/correctIndices) accepted on read.
type questionDoc struct {
	Type            string            `json:"type"`
	Question        string            `json:"question"`
	TimeLimit       int               `json:"timeLimit,omitempty"`
	Difficulty      string            `json:"difficulty,omitempty"`
	Explanation     string            `json:"explanation,omitempty"`
	Image           string            `json:"image,omitempty"`
	Video           string            `json:"video,omitempty"`
	AnimationSource string            `json:"animationSource,omitempty"`
	OptionFeedback  map[string]string `json:"optionFeedback,omitempty"`
	Options         []string          `json:"options,omitempty"`
	CorrectAnswer   json.RawMessage   `json:"correctAnswer,omitempty"`
	CorrectAnswers  []int             `json:"correctAnswers,omitempty"`
	CorrectIndex    *int              `json:"correctIndex,omitempty"`
	CorrectIndices  []int             `json:"correctIndices,omitempty"`
	CorrectOrder    []int             `json:"correctOrder,omitempty"`
	Tolerance       *float64          `json:"tolerance,omitempty"`
}

// UnmarshalJSON normalizes the wire shape: legacy correctIndex/correctIndices
// keys are converted eagerly, boolean correctAnswer accepts both a JSON bool
// and the canonical "true"/"false" string, and defaults are applied.
func (q *Question) UnmarshalJSON(data []byte) error {
	var doc questionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	kind, err := CanonicalKind(doc.Type)
	if err != nil {
		return err
	}

	out := Question{
		Kind:             kind,
		Prompt:           doc.Question,
		TimeLimitSeconds: clampTimeLimit(doc.TimeLimit),
		Difficulty:       canonicalDifficulty(doc.Difficulty),
		Explanation:      doc.Explanation,
		Image:            doc.Image,
		Video:            doc.Video,
		AnimationSource:  doc.AnimationSource,
		Options:          doc.Options,
	}

	if len(doc.OptionFeedback) > 0 {
		out.OptionFeedback = make(map[int]string, len(doc.OptionFeedback))
		for k, v := range doc.OptionFeedback {
			if idx, err := strconv.Atoi(k); err == nil {
				out.OptionFeedback[idx] = v
			}
		}
	}

	switch kind {
	case KindMultipleChoice:
		idx, err := decodeIndex(doc)
		if err != nil {
			return err
		}
		out.CorrectIndex = idx
	case KindMultipleCorrect:
		out.CorrectIndices = doc.CorrectAnswers
		if len(out.CorrectIndices) == 0 {
			out.CorrectIndices = doc.CorrectIndices
		}
		if len(out.CorrectIndices) == 0 && doc.CorrectAnswer != nil {
			// A scalar correctAnswer on a multi-correct question is promoted
			// to a single-element set.
			var single int
			if err := json.Unmarshal(doc.CorrectAnswer, &single); err == nil {
				out.CorrectIndices = []int{single}
			}
		}
	case KindTrueFalse:
		if len(out.Options) == 0 {
			out.Options = []string{"True", "False"}
		}
		b, err := decodeBoolean(doc.CorrectAnswer)
		if err != nil {
			return err
		}
		out.CorrectBoolean = b
	case KindNumeric:
		if doc.CorrectAnswer != nil {
			if err := json.Unmarshal(doc.CorrectAnswer, &out.CorrectNumber); err != nil {
				return fmt.Errorf("numeric correctAnswer: %w", err)
			}
		}
		if doc.Tolerance != nil {
			out.Tolerance = *doc.Tolerance
		}
	case KindOrdering:
		out.CorrectOrder = doc.CorrectOrder
	}

	*q = out
	return nil
}

// MarshalJSON always emits the canonical correctAnswer/correctAnswers shape;
// boolean answers are written as the string "true"/"false".
func (q Question) MarshalJSON() ([]byte, error) {
	doc := questionDoc{
		Type:            string(q.Kind),
		Question:        q.Prompt,
		TimeLimit:       q.TimeLimitSeconds,
		Difficulty:      string(q.Difficulty),
		Explanation:     q.Explanation,
		Image:           q.Image,
		Video:           q.Video,
		AnimationSource: q.AnimationSource,
		Options:         q.Options,
	}

	if len(q.OptionFeedback) > 0 {
		doc.OptionFeedback = make(map[string]string, len(q.OptionFeedback))
		for k, v := range q.OptionFeedback {
			doc.OptionFeedback[strconv.Itoa(k)] = v
		}
	}

	switch q.Kind {
	case KindMultipleChoice:
		doc.CorrectAnswer, _ = json.Marshal(q.CorrectIndex)
	case KindMultipleCorrect:
		doc.CorrectAnswers = q.CorrectIndices
	case KindTrueFalse:
		doc.CorrectAnswer, _ = json.Marshal(strconv.FormatBool(q.CorrectBoolean))
	case KindNumeric:
		doc.CorrectAnswer, _ = json.Marshal(q.CorrectNumber)
		tol := q.Tolerance
		doc.Tolerance = &tol
	case KindOrdering:
		doc.CorrectOrder = q.CorrectOrder
	}

	return json.Marshal(doc)
}

// Sanitized returns a player-facing copy with every answer-revealing field
// stripped. Hosts get the full question; players must not.
func (q Question) Sanitized() Question {
	out := q
	out.CorrectIndex = 0
	out.CorrectIndices = nil
	out.CorrectBoolean = false
	out.CorrectNumber = 0
	out.Tolerance = 0
	out.CorrectOrder = nil
	out.Explanation = ""
	out.OptionFeedback = nil
	return out
}

// CanonicalKind maps kind aliases (underscores, mixed case, shorthand) to a
// known QuestionKind.
func CanonicalKind(raw string) (QuestionKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "multiple-choice", "choice", "mcq":
		return KindMultipleChoice, nil
	case "multiple-correct", "multi-choice", "multiple-select":
		return KindMultipleCorrect, nil
	case "true-false", "boolean", "truefalse":
		return KindTrueFalse, nil
	case "numeric", "number":
		return KindNumeric, nil
	case "ordering", "order":
		return KindOrdering, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQuestionKind, raw)
}

func canonicalDifficulty(raw string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

func clampTimeLimit(seconds int) int {
	if seconds == 0 {
		return 0 // resolved against the quiz default at session start
	}
	if seconds < MinTimeLimitSeconds {
		return MinTimeLimitSeconds
	}
	if seconds > MaxTimeLimitSeconds {
		return MaxTimeLimitSeconds
	}
	return seconds
}

func decodeIndex(doc questionDoc) (int, error) {
	if doc.CorrectIndex != nil {
		return *doc.CorrectIndex, nil
	}
	if doc.CorrectAnswer == nil {
		return 0, fmt.Errorf("multiple-choice question missing correctAnswer")
	}
	var idx int
	if err := json.Unmarshal(doc.CorrectAnswer, &idx); err != nil {
		return 0, fmt.Errorf("multiple-choice correctAnswer: %w", err)
	}
	return idx, nil
}

func decodeBoolean(raw json.RawMessage) (bool, error) {
	if raw == nil {
		return false, fmt.Errorf("true-false question missing correctAnswer")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("true-false correctAnswer must be true/false, got %s", string(raw))
}
