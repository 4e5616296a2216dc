package session

import (
	"quizhub/internal/domain"
	"time"
)

// DefaultExtendSeconds is added to the deadline when extend-time carries no
// explicit amount.
const DefaultExtendSeconds = 10

// PowerUpResult is the player-scoped outcome of a power-up use.
type PowerUpResult struct {
	Success       bool               `json:"success"`
	Type          domain.PowerUpKind `json:"type"`
	HiddenOptions []int              `json:"hiddenOptions,omitempty"`
	ExtraSeconds  int                `json:"extraSeconds,omitempty"`
}

// UsePowerUp consumes a one-shot power-up. Accepted only while the session is
// in the question phase, power-ups are enabled for the quiz, and the player
// still holds that power-up.
func (s *Session) UsePowerUp(playerID string, kind domain.PowerUpKind, extraSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.quiz.PowerUpsEnabled {
		return domain.ErrPowerUpUnavailable
	}
	if s.phase != domain.PhaseQuestion {
		return domain.ErrWrongPhase
	}
	p, ok := s.players[playerID]
	if !ok || p.Left {
		return domain.ErrPlayerNotFound
	}
	if !p.PowerUps[kind] {
		return domain.ErrPowerUpUnavailable
	}

	q := s.questions[s.currentIndex]
	var result PowerUpResult

	switch kind {
	case domain.PowerUpFiftyFifty:
		if q.Kind != domain.KindMultipleChoice {
			return domain.ErrPowerUpUnavailable
		}
		hidden := fiftyFiftyHidden(q)
		s.hiddenOptions[playerID] = hidden
		result = PowerUpResult{Success: true, Type: kind, HiddenOptions: hidden}

	case domain.PowerUpExtendTime:
		extra := extraSeconds
		if extra <= 0 {
			extra = DefaultExtendSeconds
		}
		s.questionDeadlineAt = s.questionDeadlineAt.Add(time.Duration(extra) * time.Second)
		remaining := s.questionDeadlineAt.Sub(s.now())
		if s.timer != nil {
			s.timer.Stop()
		}
		epoch := s.questionEpoch
		s.timer = time.AfterFunc(remaining, func() { s.onDeadline(epoch) })
		result = PowerUpResult{Success: true, Type: kind, ExtraSeconds: extra}

	case domain.PowerUpDoublePoints:
		p.DoublePointsArmed = true
		result = PowerUpResult{Success: true, Type: kind}

	default:
		return domain.ErrPowerUpUnavailable
	}

	p.PowerUps[kind] = false
	s.emitter.ToPlayer(playerID, "power-up-result", result)
	return nil
}

// fiftyFiftyHidden picks ceil(wrong/2) wrong option indices to hide. The pick
// is deterministic (lowest wrong indices first) so replays and tests agree.
func fiftyFiftyHidden(q domain.Question) []int {
	wrong := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	return wrong[:ceilHalf(len(wrong))]
}
