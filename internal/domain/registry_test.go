package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateFlagsBrokenPayloads(t *testing.T) {
	cases := []struct {
		name string
		q    Question
	}{
		{"empty prompt", Question{Kind: KindMultipleChoice, Options: []string{"a", "b"}, CorrectIndex: 0}},
		{"index out of range", Question{Kind: KindMultipleChoice, Prompt: "?", Options: []string{"a", "b"}, CorrectIndex: 5}},
		{"too few options", Question{Kind: KindMultipleChoice, Prompt: "?", Options: []string{"a"}, CorrectIndex: 0}},
		{"no correct set", Question{Kind: KindMultipleCorrect, Prompt: "?", Options: []string{"a", "b"}}},
		{"duplicate correct", Question{Kind: KindMultipleCorrect, Prompt: "?", Options: []string{"a", "b"}, CorrectIndices: []int{1, 1}}},
		{"negative tolerance", Question{Kind: KindNumeric, Prompt: "?", CorrectNumber: 1, Tolerance: -0.5}},
		{"order length mismatch", Question{Kind: KindOrdering, Prompt: "?", Options: []string{"a", "b", "c"}, CorrectOrder: []int{0, 1}}},
		{"order repeats index", Question{Kind: KindOrdering, Prompt: "?", Options: []string{"a", "b"}, CorrectOrder: []int{0, 0}}},
	}
	for _, tc := range cases {
		if errs := Validate(tc.q); len(errs) == 0 {
			t.Fatalf("%s: expected validation errors", tc.name)
		}
	}

	ok := Question{Kind: KindTrueFalse, Prompt: "?", Options: []string{"True", "False"}, CorrectBoolean: true}
	if errs := Validate(ok); len(errs) != 0 {
		t.Fatalf("expected valid, got %v", errs)
	}
}

func TestScoreMultipleChoice(t *testing.T) {
	q := Question{Kind: KindMultipleChoice, Options: []string{"a", "b", "c"}, CorrectIndex: 2}

	_, correctness, err := Score(json.RawMessage(`2`), q)
	if err != nil || correctness != 1 {
		t.Fatalf("expected full credit, got %v err=%v", correctness, err)
	}
	_, correctness, err = Score(json.RawMessage(`0`), q)
	if err != nil || correctness != 0 {
		t.Fatalf("expected zero credit, got %v err=%v", correctness, err)
	}
	if _, _, err := Score(json.RawMessage(`7`), q); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer for out-of-range index, got %v", err)
	}
	if _, _, err := Score(json.RawMessage(`"b"`), q); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer for wrong shape, got %v", err)
	}
}

func TestScoreMultipleCorrectExactSet(t *testing.T) {
	q := Question{Kind: KindMultipleCorrect, Options: []string{"a", "b", "c", "d"}, CorrectIndices: []int{1, 3}}

	_, correctness, err := Score(json.RawMessage(`[3,1]`), q)
	if err != nil || correctness != 1 {
		t.Fatalf("order must not matter, got %v err=%v", correctness, err)
	}
	_, correctness, _ = Score(json.RawMessage(`[1]`), q)
	if correctness != 0 {
		t.Fatalf("subset must score zero, got %v", correctness)
	}
	_, correctness, _ = Score(json.RawMessage(`[1,2,3]`), q)
	if correctness != 0 {
		t.Fatalf("superset must score zero, got %v", correctness)
	}
}

func TestScoreNumericTolerance(t *testing.T) {
	q := Question{Kind: KindNumeric, CorrectNumber: 3.14, Tolerance: 0.01}

	_, correctness, err := Score(json.RawMessage(`3.145`), q)
	if err != nil || correctness != 1 {
		t.Fatalf("inside tolerance should score, got %v err=%v", correctness, err)
	}
	_, correctness, _ = Score(json.RawMessage(`3.2`), q)
	if correctness != 0 {
		t.Fatalf("outside tolerance should not score, got %v", correctness)
	}
	// Exact match with zero tolerance.
	q.Tolerance = 0
	_, correctness, _ = Score(json.RawMessage(`3.14`), q)
	if correctness != 1 {
		t.Fatalf("exact match should score, got %v", correctness)
	}
}

func TestScoreTrueFalseStringForm(t *testing.T) {
	q := Question{Kind: KindTrueFalse, Options: []string{"True", "False"}, CorrectBoolean: true}

	_, correctness, err := Score(json.RawMessage(`"true"`), q)
	if err != nil || correctness != 1 {
		t.Fatalf("string form should decode, got %v err=%v", correctness, err)
	}
	_, correctness, _ = Score(json.RawMessage(`false`), q)
	if correctness != 0 {
		t.Fatalf("wrong answer scored %v", correctness)
	}
}

func TestScoreOrderingPartialCredit(t *testing.T) {
	q := Question{
		Kind:         KindOrdering,
		Options:      []string{"a", "b", "c", "d"},
		CorrectOrder: []int{0, 1, 2, 3},
	}

	_, correctness, err := Score(json.RawMessage(`[0,1,3,2]`), q)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if correctness != 0.5 {
		t.Fatalf("two of four in place should give 0.5, got %v", correctness)
	}

	_, correctness, _ = Score(json.RawMessage(`[0,1,2,3]`), q)
	if correctness != 1 {
		t.Fatalf("perfect order should give 1, got %v", correctness)
	}

	_, correctness, _ = Score(json.RawMessage(`[0,1]`), q)
	if correctness != 0 {
		t.Fatalf("wrong length should give 0, got %v", correctness)
	}
}

func TestDefaultPayloadsValidateCleanly(t *testing.T) {
	// Editor defaults have blanks users must fill in, but they must carry the
	// structural shape the kind expects.
	for kind, wantOptions := range map[QuestionKind]int{
		KindMultipleChoice:  4,
		KindMultipleCorrect: 4,
		KindTrueFalse:       2,
		KindNumeric:         0,
		KindOrdering:        2,
	} {
		q := ForKind(kind).DefaultPayload()
		if q.Kind != kind {
			t.Fatalf("default payload for %q has kind %q", kind, q.Kind)
		}
		if len(q.Options) != wantOptions {
			t.Fatalf("default payload for %q has %d options, want %d", kind, len(q.Options), wantOptions)
		}
		if q.Difficulty != DifficultyMedium {
			t.Fatalf("default payload for %q should be medium", kind)
		}
	}
}
