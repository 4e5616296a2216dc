package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quizhub/internal/domain"
)

func powerUpQuiz() domain.Quiz {
	q := twoQuestionQuiz()
	q.PowerUpsEnabled = true
	return q
}

func TestFiftyFiftyHidesWrongOptions(t *testing.T) {
	s, emitter, _ := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); err != nil {
		t.Fatalf("use: %v", err)
	}

	ev, ok := emitter.find("p1", "power-up-result")
	if !ok {
		t.Fatalf("missing power-up-result")
	}
	result := ev.data.(PowerUpResult)
	if !result.Success || result.Type != domain.PowerUpFiftyFifty {
		t.Fatalf("unexpected result %+v", result)
	}
	// Three options, correct index 0: two wrong, ceil(2/2)=1 hidden, lowest
	// wrong index first.
	if len(result.HiddenOptions) != 1 || result.HiddenOptions[0] != 1 {
		t.Fatalf("unexpected hidden options %v", result.HiddenOptions)
	}
	for _, idx := range result.HiddenOptions {
		if idx == 0 {
			t.Fatalf("fifty-fifty hid the correct option")
		}
	}
}

func TestFiftyFiftyChoiceQuestionsOnly(t *testing.T) {
	quiz := powerUpQuiz()
	quiz.Questions[0], quiz.Questions[1] = quiz.Questions[1], quiz.Questions[0] // true-false first

	s, _, _ := newTestSession(t, quiz)
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); !errors.Is(err, domain.ErrPowerUpUnavailable) {
		t.Fatalf("expected unavailable on true-false, got %v", err)
	}
	// The failed attempt must not consume the power-up.
	if err := s.SubmitAnswer("p1", json.RawMessage(`"false"`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.NextQuestion(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); err != nil {
		t.Fatalf("power-up should survive a rejected use: %v", err)
	}
}

func TestExtendTimeMovesDeadline(t *testing.T) {
	s, _, clock := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	// Past the original 30s deadline but inside the extension.
	if err := s.UsePowerUp("p1", domain.PowerUpExtendTime, 20); err != nil {
		t.Fatalf("use: %v", err)
	}
	clock.Advance(45 * time.Second)
	if err := s.SubmitAnswer("p1", json.RawMessage(`0`)); err != nil {
		t.Fatalf("answer inside extension rejected: %v", err)
	}
}

func TestExtendTimeDefaultsSeconds(t *testing.T) {
	s, emitter, _ := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpExtendTime, 0); err != nil {
		t.Fatalf("use: %v", err)
	}
	ev, _ := emitter.find("p1", "power-up-result")
	if got := ev.data.(PowerUpResult).ExtraSeconds; got != DefaultExtendSeconds {
		t.Fatalf("expected default %d seconds, got %d", DefaultExtendSeconds, got)
	}
}

func TestDoublePointsConsumedOnAnyAnswer(t *testing.T) {
	s, emitter, clock := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpDoublePoints, 0); err != nil {
		t.Fatalf("use: %v", err)
	}
	// Wrong answer still burns the armed flag.
	if err := s.SubmitAnswer("p1", json.RawMessage(`2`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.NextQuestion(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	clock.Advance(3 * time.Second)
	if err := s.SubmitAnswer("p1", json.RawMessage(`"false"`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev, ok := emitter.find("p1", "player-result")
	if !ok {
		t.Fatalf("missing player-result")
	}
	if pts := ev.data.(map[string]any)["points"].(int); pts != 0 {
		t.Fatalf("wrong answer scored %d", pts)
	}
	// The second (correct) answer must not be doubled. Find the last result.
	emitter.mu.Lock()
	var last map[string]any
	for _, rec := range emitter.events {
		if rec.scope == "p1" && rec.event == "player-result" {
			last = rec.data.(map[string]any)
		}
	}
	emitter.mu.Unlock()
	if pts := last["points"].(int); pts != 203 {
		t.Fatalf("expected undoubled 203, got %d", pts)
	}
}

func TestDoublePointsDoublesAward(t *testing.T) {
	s, emitter, clock := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpDoublePoints, 0); err != nil {
		t.Fatalf("use: %v", err)
	}
	clock.Advance(3 * time.Second)
	if err := s.SubmitAnswer("p1", json.RawMessage(`0`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev, _ := emitter.find("p1", "player-result")
	if pts := ev.data.(map[string]any)["points"].(int); pts != 405 {
		t.Fatalf("expected doubled award, got %d", pts)
	}
}

func TestPowerUpSingleUse(t *testing.T) {
	s, _, _ := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); !errors.Is(err, domain.ErrPowerUpUnavailable) {
		t.Fatalf("expected unavailable on reuse, got %v", err)
	}
	// Other power-ups are unaffected.
	if err := s.UsePowerUp("p1", domain.PowerUpDoublePoints, 0); err != nil {
		t.Fatalf("independent power-up: %v", err)
	}
}

func TestPowerUpsDisabledByQuiz(t *testing.T) {
	s, _, _ := newTestSession(t, twoQuestionQuiz()) // PowerUpsEnabled false
	mustJoin(t, s, "p1", "Alice")
	mustStart(t, s)

	if err := s.UsePowerUp("p1", domain.PowerUpDoublePoints, 0); !errors.Is(err, domain.ErrPowerUpUnavailable) {
		t.Fatalf("expected unavailable when disabled, got %v", err)
	}
}

func TestPowerUpWrongPhase(t *testing.T) {
	s, _, _ := newTestSession(t, powerUpQuiz())
	mustJoin(t, s, "p1", "Alice")

	if err := s.UsePowerUp("p1", domain.PowerUpFiftyFifty, 0); !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected wrong phase in lobby, got %v", err)
	}
}
