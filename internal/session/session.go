// Package session implements the authoritative quiz state machine. One
// Session owns all state for a live game; every mutation goes through a named
// transition method behind the session mutex, and the outside world only ever
// sees events.
package session

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"quizhub/internal/domain"
	"quizhub/internal/scoring"
)

const (
	// ResultDisplayDuration is the reveal-hold before auto-advancing.
	ResultDisplayDuration = 5 * time.Second
	// NextQuestionDebounce is the server-side minimum gap between accepted
	// host advance requests.
	NextQuestionDebounce = time.Second
	// DefaultQuestionTime is used when neither the question nor the quiz
	// carries a time limit.
	DefaultQuestionTime = 30
)

// Emitter is how the session talks to the outside. The networked transport
// fans Broadcast out to every connection; practice mode points everything at
// one local bus.
type Emitter interface {
	Broadcast(event string, data any)
	ToPlayer(playerID string, event string, data any)
	ToHost(event string, data any)
}

// Option customizes a session at construction time.
type Option func(*Session)

// WithClock injects the time source. Deadline arithmetic only ever uses this
// clock, never the wall clock directly.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRand injects the shuffle source so randomization is reproducible.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Session) { s.rnd = rnd }
}

// WithAutoAdvance forces auto-advancement regardless of the quiz's
// manualAdvancement flag. Practice mode uses this.
func WithAutoAdvance() Option {
	return func(s *Session) { s.forceAutoAdvance = true }
}

type recordedAnswer struct {
	value       any
	correctness float64
	awarded     int
}

// Session drives one live game from lobby to finished.
type Session struct {
	mu sync.Mutex

	pin     string
	quiz    domain.Quiz
	emitter Emitter
	now     func() time.Time
	rnd     *rand.Rand

	phase            domain.GamePhase
	questions        []domain.Question // post-randomization copy
	currentIndex     int
	players          map[string]*domain.Player
	answers          map[string]recordedAnswer // current question, by player
	forceAutoAdvance bool

	questionStartedAt  time.Time
	questionDeadlineAt time.Time
	questionEpoch      int // guards stale timer callbacks
	timer              *time.Timer
	revealTimer        *time.Timer
	lastAdvanceAt      time.Time
	hiddenOptions      map[string][]int // fifty-fifty results, by player
}

// New creates a session in the lobby phase.
func New(pin string, quiz domain.Quiz, emitter Emitter, opts ...Option) *Session {
	s := &Session{
		pin:           pin,
		quiz:          quiz,
		emitter:       emitter,
		now:           time.Now,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
		phase:         domain.PhaseLobby,
		currentIndex:  -1,
		players:       make(map[string]*domain.Player),
		answers:       make(map[string]recordedAnswer),
		hiddenOptions: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PIN returns the session identifier.
func (s *Session) PIN() string { return s.pin }

// Phase reports the current phase.
func (s *Session) Phase() domain.GamePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Join registers a player while the session is in the lobby.
func (s *Session) Join(playerID, name string) error {
	if err := domain.ValidatePlayerName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	if _, ok := s.players[playerID]; ok {
		return nil // rejoin with same id refreshes nothing
	}
	s.players[playerID] = &domain.Player{
		ID:       playerID,
		Name:     name,
		PowerUps: domain.AllPowerUps(),
	}
	return nil
}

// PlayerCount reports players that have not left.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveCountLocked()
}

func (s *Session) liveCountLocked() int {
	n := 0
	for _, p := range s.players {
		if !p.Left {
			n++
		}
	}
	return n
}

// Start moves lobby -> playing and delivers the first question. It applies
// the quiz's randomization and timing options to a private question copy.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	if len(s.quiz.Questions) == 0 {
		return fmt.Errorf("quiz has no questions")
	}

	s.questions = prepareQuestions(s.quiz, s.rnd)
	s.phase = domain.PhasePlaying
	s.emitter.Broadcast("game-starting", map[string]any{
		"title":          s.quiz.Title,
		"totalQuestions": len(s.questions),
	})
	s.beginQuestionLocked(0)
	return nil
}

// prepareQuestions builds the session's immutable question copy: shuffled
// order, shuffled options with remapped correct indices, uniform timing.
func prepareQuestions(quiz domain.Quiz, rnd *rand.Rand) []domain.Question {
	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)

	if quiz.RandomizeQuestions {
		// Fisher-Yates
		for i := len(questions) - 1; i > 0; i-- {
			j := rnd.Intn(i + 1)
			questions[i], questions[j] = questions[j], questions[i]
		}
	}

	for i := range questions {
		q := &questions[i]
		if quiz.RandomizeAnswers {
			shuffleOptions(q, rnd)
		}
		if quiz.SameTimeForAll || q.TimeLimitSeconds == 0 {
			q.TimeLimitSeconds = quiz.QuestionTime
		}
		if q.TimeLimitSeconds == 0 {
			q.TimeLimitSeconds = DefaultQuestionTime
		}
	}
	return questions
}

// shuffleOptions permutes the options of choice questions and remaps the
// correct indices so they keep pointing at the same option text.
func shuffleOptions(q *domain.Question, rnd *rand.Rand) {
	if q.Kind != domain.KindMultipleChoice && q.Kind != domain.KindMultipleCorrect {
		return
	}
	n := len(q.Options)
	if n < 2 {
		return
	}
	// perm[old] = new position
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}

	options := make([]string, n)
	feedback := map[int]string{}
	for old, text := range q.Options {
		options[perm[old]] = text
		if fb, ok := q.OptionFeedback[old]; ok {
			feedback[perm[old]] = fb
		}
	}
	q.Options = options
	if len(feedback) > 0 {
		q.OptionFeedback = feedback
	}

	if q.Kind == domain.KindMultipleChoice {
		q.CorrectIndex = perm[q.CorrectIndex]
	} else {
		remapped := make([]int, len(q.CorrectIndices))
		for i, idx := range q.CorrectIndices {
			remapped[i] = perm[idx]
		}
		q.CorrectIndices = remapped
	}
}

func (s *Session) beginQuestionLocked(index int) {
	s.currentIndex = index
	s.phase = domain.PhaseQuestion
	s.answers = make(map[string]recordedAnswer)
	s.hiddenOptions = make(map[string][]int)
	s.questionEpoch++

	for _, p := range s.players {
		p.AnsweredCurrent = false
		p.ResponseTimeMs = 0
	}

	q := s.questions[index]
	now := s.now()
	s.questionStartedAt = now
	s.questionDeadlineAt = now.Add(time.Duration(q.TimeLimitSeconds) * time.Second)

	sanitized := q.Sanitized()
	s.emitter.Broadcast("question-start", map[string]any{
		"questionNumber": index + 1,
		"totalQuestions": len(s.questions),
		"question":       sanitized.Prompt,
		"options":        sanitized.Options,
		"type":           sanitized.Kind,
		"timeLimit":      q.TimeLimitSeconds,
		"image":          sanitized.Image,
		"video":          sanitized.Video,
	})
	s.emitter.ToHost("host-question", map[string]any{
		"questionNumber": index + 1,
		"totalQuestions": len(s.questions),
		"question":       q, // hosts see the full payload
	})
	s.emitter.Broadcast("hide-next-button", struct{}{})

	s.armQuestionTimerLocked(q.TimeLimitSeconds)
}

func (s *Session) armQuestionTimerLocked(seconds int) {
	if s.timer != nil {
		s.timer.Stop()
	}
	epoch := s.questionEpoch
	s.timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		s.onDeadline(epoch)
	})
}

func (s *Session) onDeadline(epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseQuestion || s.questionEpoch != epoch {
		return // a reveal already happened for this question
	}
	s.revealLocked()
}

// SubmitAnswer records and scores one player's answer. Acceptance rules:
// the session is in the question phase, the player has not answered this
// question, and the submission arrived before the deadline.
func (s *Session) SubmitAnswer(playerID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestion {
		return domain.ErrWrongPhase
	}
	p, ok := s.players[playerID]
	if !ok || p.Left {
		return domain.ErrPlayerNotFound
	}
	if p.AnsweredCurrent {
		return domain.ErrAlreadyAnswered
	}
	now := s.now()
	if now.After(s.questionDeadlineAt) {
		return domain.ErrAnswerTooLate
	}

	q := s.questions[s.currentIndex]
	value, correctness, err := domain.Score(raw, q)
	if err != nil {
		return err
	}

	rt := now.Sub(s.questionStartedAt).Milliseconds()

	// The double-points flag is consumed whether or not the answer scored.
	double := p.DoublePointsArmed
	p.DoublePointsArmed = false

	awarded := scoring.Award(scoring.Input{
		Correctness:    correctness,
		ResponseTimeMs: rt,
		Difficulty:     q.Difficulty,
		DoublePoints:   double,
		Config:         s.quiz.ScoringConfig,
	})

	p.AnsweredCurrent = true
	p.ResponseTimeMs = rt
	p.TotalResponseMs += rt
	p.Score += awarded
	if correctness > 0 {
		p.Streak++
	} else {
		p.Streak = 0
	}

	s.answers[playerID] = recordedAnswer{value: value, correctness: correctness, awarded: awarded}

	s.emitter.ToPlayer(playerID, "player-result", map[string]any{
		"correct":       correctness > 0,
		"points":        awarded,
		"totalScore":    p.Score,
		"correctAnswer": correctAnswerPayload(q),
	})

	if s.allAnsweredLocked() {
		s.revealLocked()
	}
	return nil
}

func (s *Session) allAnsweredLocked() bool {
	for _, p := range s.players {
		if !p.Left && !p.AnsweredCurrent {
			return false
		}
	}
	return s.liveCountLocked() > 0
}

// revealLocked transitions question -> revealing: the timer stops, the
// correct answer and statistics go out, and advancement is scheduled.
func (s *Session) revealLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.questionEpoch++ // invalidates any in-flight deadline callback
	s.phase = domain.PhaseRevealing

	q := s.questions[s.currentIndex]
	s.emitter.Broadcast("question-end", map[string]any{
		"correctAnswer": correctAnswerPayload(q),
		"explanation":   q.Explanation,
		"leaderboard":   s.leaderboardLocked(),
		"statistics":    s.statisticsLocked(q),
	})

	auto := s.forceAutoAdvance || !s.quiz.ManualAdvancement
	if auto {
		epoch := s.questionEpoch
		s.revealTimer = time.AfterFunc(ResultDisplayDuration, func() {
			s.autoAdvance(epoch)
		})
	} else {
		// manual games park between questions until the host advances
		s.phase = domain.PhaseBetween
		s.emitter.ToHost("show-next-button", struct{}{})
	}
}

func (s *Session) autoAdvance(epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseRevealing || s.questionEpoch != epoch {
		return
	}
	s.advanceLocked()
}

// NextQuestion handles a host advance request. Requests are debounced
// server-side; extras inside the window are dropped.
func (s *Session) NextQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseRevealing && s.phase != domain.PhaseBetween {
		return domain.ErrWrongPhase
	}
	now := s.now()
	if !s.lastAdvanceAt.IsZero() && now.Sub(s.lastAdvanceAt) < NextQuestionDebounce {
		return nil
	}
	s.lastAdvanceAt = now
	if s.revealTimer != nil {
		s.revealTimer.Stop()
	}
	s.advanceLocked()
	return nil
}

func (s *Session) advanceLocked() {
	next := s.currentIndex + 1
	if next >= len(s.questions) {
		s.finishLocked()
		return
	}
	s.emitter.Broadcast("hide-next-button", struct{}{})
	s.beginQuestionLocked(next)
}

func (s *Session) finishLocked() {
	s.phase = domain.PhaseFinished
	s.stopTimersLocked()
	s.emitter.Broadcast("game-end", map[string]any{
		"leaderboard": s.leaderboardLocked(),
	})
}

// Leave marks a player gone. Their score stays on the leaderboard; if no live
// players remain the game ends.
func (s *Session) Leave(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.Left {
		return
	}
	p.Left = true
	if s.phase == domain.PhaseFinished || s.phase == domain.PhaseLobby {
		return
	}
	if s.liveCountLocked() == 0 {
		s.finishLocked()
		return
	}
	// The departed player no longer blocks the all-answered short circuit.
	if s.phase == domain.PhaseQuestion && s.allAnsweredLocked() {
		s.revealLocked()
	}
}

// Close tears the session down: timers cleared, state frozen.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.phase = domain.PhaseFinished
}

func (s *Session) stopTimersLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.revealTimer != nil {
		s.revealTimer.Stop()
	}
	s.questionEpoch++
}

// Leaderboard returns the current standings snapshot.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

func (s *Session) leaderboardLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:        p.ID,
			Name:            p.Name,
			Score:           p.Score,
			Streak:          p.Streak,
			TotalResponseMs: p.TotalResponseMs,
		})
	}
	sortLeaderboard(entries)
	return domain.Leaderboard{
		PIN:       s.pin,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

// sortLeaderboard orders by score descending, ties broken by total response
// time ascending, then name for stability.
func sortLeaderboard(entries []domain.LeaderboardEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && leaderboardLess(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func leaderboardLess(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.TotalResponseMs != b.TotalResponseMs {
		return a.TotalResponseMs < b.TotalResponseMs
	}
	return a.Name < b.Name
}

func (s *Session) statisticsLocked(q domain.Question) domain.AnswerStatistics {
	stats := domain.AnswerStatistics{
		Answered: len(s.answers),
		Total:    s.liveCountLocked(),
	}
	switch q.Kind {
	case domain.KindNumeric:
		for _, a := range s.answers {
			if f, ok := a.value.(float64); ok {
				stats.Values = append(stats.Values, f)
			}
		}
	case domain.KindTrueFalse:
		stats.OptionCounts = make(map[int]int)
		for _, a := range s.answers {
			if b, ok := a.value.(bool); ok {
				if b {
					stats.OptionCounts[0]++
				} else {
					stats.OptionCounts[1]++
				}
			}
		}
	default:
		stats.OptionCounts = make(map[int]int)
		for _, a := range s.answers {
			switch v := a.value.(type) {
			case int:
				stats.OptionCounts[v]++
			case []int:
				for _, idx := range v {
					stats.OptionCounts[idx]++
				}
			}
		}
	}
	return stats
}

func correctAnswerPayload(q domain.Question) any {
	switch q.Kind {
	case domain.KindMultipleChoice:
		return q.CorrectIndex
	case domain.KindMultipleCorrect:
		return q.CorrectIndices
	case domain.KindTrueFalse:
		return q.CorrectBoolean
	case domain.KindNumeric:
		return q.CorrectNumber
	case domain.KindOrdering:
		return q.CorrectOrder
	}
	return nil
}

// ceilHalf is ceil(n/2) without floating point.
func ceilHalf(n int) int {
	return int(math.Ceil(float64(n) / 2))
}
