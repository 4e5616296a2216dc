package ai

import (
	"encoding/json"
	"log"
	"strings"

	"quizhub/internal/domain"
)

// Normalize applies the auto-fixes to raw question objects, decodes them into
// the canonical model, and drops anything the registry validator rejects.
// The surviving questions come back in input order.
func Normalize(items []json.RawMessage) []domain.Question {
	questions := make([]domain.Question, 0, len(items))
	for i, item := range items {
		fixed := autoFix(item)

		var q domain.Question
		if err := json.Unmarshal(fixed, &q); err != nil {
			log.Printf("ai: dropping question %d: %v", i, err)
			continue
		}
		if errs := domain.Validate(q); len(errs) > 0 {
			log.Printf("ai: dropping question %d (%q): %s", i, firstWords(q.Prompt, 6), strings.Join(errs, "; "))
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// autoFix rewrites the common model mistakes before strict decoding: letter
// answers become indices, a scalar correctAnswer on a multi-correct question
// becomes a one-element correctAnswers array, kind aliases are canonicalized.
func autoFix(item json.RawMessage) json.RawMessage {
	var obj map[string]any
	if err := json.Unmarshal(item, &obj); err != nil {
		return item
	}

	if rawKind, ok := obj["type"].(string); ok {
		if kind, err := domain.CanonicalKind(rawKind); err == nil {
			obj["type"] = string(kind)
		}
	}
	kind, _ := obj["type"].(string)

	if letter, ok := obj["correctAnswer"].(string); ok && kind != string(domain.KindTrueFalse) {
		if idx, ok := letterIndex(letter); ok {
			obj["correctAnswer"] = idx
		}
	}

	if kind == string(domain.KindMultipleCorrect) {
		if _, has := obj["correctAnswers"]; !has {
			switch v := obj["correctAnswer"].(type) {
			case float64:
				obj["correctAnswers"] = []int{int(v)}
				delete(obj, "correctAnswer")
			case []any:
				obj["correctAnswers"] = v
				delete(obj, "correctAnswer")
			}
		}
	}

	if _, has := obj["difficulty"]; !has {
		obj["difficulty"] = string(domain.DifficultyMedium)
	}

	fixed, err := json.Marshal(obj)
	if err != nil {
		return item
	}
	return fixed
}

// letterIndex maps "A".."H" (any case, optional trailing punctuation) to an
// option index.
func letterIndex(s string) (int, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(strings.ToUpper(s)), ".):")
	if len(trimmed) != 1 {
		return 0, false
	}
	c := trimmed[0]
	if c < 'A' || c > 'H' {
		return 0, false
	}
	return int(c - 'A'), true
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
