package ai

import (
	"encoding/json"
	"testing"

	"quizhub/internal/domain"
)

func rawItems(t *testing.T, objects ...string) []json.RawMessage {
	t.Helper()
	items := make([]json.RawMessage, len(objects))
	for i, o := range objects {
		if !json.Valid([]byte(o)) {
			t.Fatalf("test fixture %d is not valid JSON", i)
		}
		items[i] = json.RawMessage(o)
	}
	return items
}

func TestNormalizeLetterAnswer(t *testing.T) {
	questions := Normalize(rawItems(t,
		`{"question": "Pick one.", "type": "multiple-choice", "options": ["a", "b", "c", "d"], "correctAnswer": "B"}`,
	))
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if questions[0].CorrectIndex != 1 {
		t.Fatalf("letter B should map to index 1, got %d", questions[0].CorrectIndex)
	}
}

func TestNormalizeKindAliases(t *testing.T) {
	questions := Normalize(rawItems(t,
		`{"question": "Pick one.", "type": "mcq", "options": ["a", "b"], "correctAnswer": 0}`,
		`{"question": "True?", "type": "boolean", "correctAnswer": "true"}`,
	))
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].Kind != domain.KindMultipleChoice {
		t.Fatalf("mcq not canonicalized: %s", questions[0].Kind)
	}
	if questions[1].Kind != domain.KindTrueFalse {
		t.Fatalf("boolean not canonicalized: %s", questions[1].Kind)
	}
}

func TestNormalizeScalarMultiCorrect(t *testing.T) {
	questions := Normalize(rawItems(t,
		`{"question": "Which?", "type": "multiple-correct", "options": ["a", "b", "c"], "correctAnswer": 2}`,
	))
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	if len(questions[0].CorrectIndices) != 1 || questions[0].CorrectIndices[0] != 2 {
		t.Fatalf("scalar answer not promoted: %v", questions[0].CorrectIndices)
	}
}

func TestNormalizeDefaultsDifficulty(t *testing.T) {
	questions := Normalize(rawItems(t,
		`{"question": "Pick one.", "type": "multiple-choice", "options": ["a", "b"], "correctAnswer": 0}`,
	))
	if questions[0].Difficulty != domain.DifficultyMedium {
		t.Fatalf("expected medium default, got %q", questions[0].Difficulty)
	}
}

func TestNormalizeDropsInvalidKeepsOrder(t *testing.T) {
	questions := Normalize(rawItems(t,
		`{"question": "First?", "type": "multiple-choice", "options": ["a", "b"], "correctAnswer": 0}`,
		`{"question": "", "type": "multiple-choice", "options": ["a", "b"], "correctAnswer": 0}`,
		`{"question": "Broken index.", "type": "multiple-choice", "options": ["a", "b"], "correctAnswer": 9}`,
		`{"question": "Last?", "type": "true-false", "correctAnswer": "false"}`,
	))
	if len(questions) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(questions))
	}
	if questions[0].Prompt != "First?" || questions[1].Prompt != "Last?" {
		t.Fatalf("order not preserved: %q, %q", questions[0].Prompt, questions[1].Prompt)
	}
}

func TestLetterIndex(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"A", 0, true},
		{"b", 1, true},
		{" C) ", 2, true},
		{"D.", 3, true},
		{"H", 7, true},
		{"Z", 0, false},
		{"AB", 0, false},
		{"", 0, false},
		{"1", 0, false},
	}
	for _, tc := range cases {
		got, ok := letterIndex(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("letterIndex(%q) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
