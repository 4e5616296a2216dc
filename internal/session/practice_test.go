package session

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quizhub/internal/domain"
)

type fakeHistory struct {
	mu      sync.Mutex
	records map[string]domain.PracticeHistory
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{records: make(map[string]domain.PracticeHistory)}
}

func (f *fakeHistory) Get(_ context.Context, quizKey string) (domain.PracticeHistory, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[quizKey]
	return rec, ok, nil
}

func (f *fakeHistory) Put(_ context.Context, history domain.PracticeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[history.QuizKey] = history
	return nil
}

// runPractice plays one run answering the first question with raw, then leaves
// so the run finishes without sitting out the reveal hold.
func runPractice(t *testing.T, store *fakeHistory, raw json.RawMessage) PracticeResult {
	t.Helper()
	clock := newFakeClock()
	p, err := NewPracticeWithRand("geo.json", "Solo", twoQuestionQuiz(), store, rand.New(rand.NewSource(7)), clock.Now)
	if err != nil {
		t.Fatalf("new practice: %v", err)
	}
	defer p.Close()

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	if err := p.SubmitAnswer(raw); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p.Session.Leave(PracticePlayerID)

	return waitForResult(t, p)
}

func waitForResult(t *testing.T, p *Practice) PracticeResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if result, ok := p.Result(); ok {
			return result
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("practice result never arrived")
	return PracticeResult{}
}

func TestPracticeRecordsFirstRunAsBest(t *testing.T) {
	store := newFakeHistory()
	result := runPractice(t, store, json.RawMessage(`0`))

	if result.Score != 203 {
		t.Fatalf("expected 203, got %d", result.Score)
	}
	if !result.NewBest || result.BestScore != 203 || result.Attempts != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	rec, ok, _ := store.Get(context.Background(), "geo.json")
	if !ok || rec.BestScore != 203 || rec.Attempts != 1 {
		t.Fatalf("unexpected history %+v", rec)
	}
	if rec.LastPlayedIso == "" {
		t.Fatalf("last played not recorded")
	}
}

func TestPracticeWorseRunKeepsBest(t *testing.T) {
	store := newFakeHistory()
	runPractice(t, store, json.RawMessage(`0`))
	result := runPractice(t, store, json.RawMessage(`1`)) // wrong answer

	if result.Score != 0 {
		t.Fatalf("expected 0, got %d", result.Score)
	}
	if result.NewBest {
		t.Fatalf("worse run flagged as new best")
	}
	if result.BestScore != 203 || result.Attempts != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPracticeEqualScoreIsNotNewBest(t *testing.T) {
	store := newFakeHistory()
	runPractice(t, store, json.RawMessage(`0`))
	result := runPractice(t, store, json.RawMessage(`0`))

	if result.NewBest {
		t.Fatalf("equal score must not count as a new best")
	}
	if result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestPracticeEmitsResultEvent(t *testing.T) {
	store := newFakeHistory()
	clock := newFakeClock()
	p, err := NewPracticeWithRand("geo.json", "Solo", twoQuestionQuiz(), store, rand.New(rand.NewSource(7)), clock.Now)
	if err != nil {
		t.Fatalf("new practice: %v", err)
	}
	defer p.Close()

	got := make(chan PracticeResult, 1)
	p.Bus.On("practice-result", func(raw json.RawMessage) {
		var result PracticeResult
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Errorf("decode practice-result: %v", err)
			return
		}
		got <- result
	})

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SubmitAnswer(json.RawMessage(`0`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p.Session.Leave(PracticePlayerID)

	select {
	case result := <-got:
		if result.Score <= 0 {
			t.Fatalf("expected a positive score, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("practice-result never delivered")
	}
}

func TestPracticeRejectsBadName(t *testing.T) {
	if _, err := NewPractice("geo.json", "", twoQuestionQuiz(), newFakeHistory()); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestPracticeFinalizesOnce(t *testing.T) {
	store := newFakeHistory()
	clock := newFakeClock()
	p, err := NewPracticeWithRand("geo.json", "Solo", twoQuestionQuiz(), store, rand.New(rand.NewSource(7)), clock.Now)
	if err != nil {
		t.Fatalf("new practice: %v", err)
	}
	defer p.Close()

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SubmitAnswer(json.RawMessage(`0`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	p.Session.Leave(PracticePlayerID)
	waitForResult(t, p)

	// Extra finalize calls are absorbed.
	p.finalize()
	p.finalize()

	rec, _, _ := store.Get(context.Background(), "geo.json")
	if rec.Attempts != 1 {
		t.Fatalf("finalize ran more than once: attempts=%d", rec.Attempts)
	}
}
