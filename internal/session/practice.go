package session

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"quizhub/internal/bus"
	"quizhub/internal/domain"
)

// PracticePlayerID is the synthetic player in single-player practice runs.
const PracticePlayerID = "practice-player"

// HistoryStore persists per-quiz practice records.
type HistoryStore interface {
	Get(ctx context.Context, quizKey string) (domain.PracticeHistory, bool, error)
	Put(ctx context.Context, history domain.PracticeHistory) error
}

// busEmitter points every session emission at a single bus. With one player
// there is no distinction between broadcast, player, and host scope.
type busEmitter struct {
	bus bus.Bus
}

func (e busEmitter) Broadcast(event string, data any)   { e.bus.Emit(event, data) }
func (e busEmitter) ToPlayer(_, event string, data any) { e.bus.Emit(event, data) }
func (e busEmitter) ToHost(event string, data any)      { e.bus.Emit(event, data) }

// Practice runs the same state machine as a hosted game for a single local
// player: auto-advance is forced, events flow over a local bus, and a
// PracticeHistory record is maintained per quiz key.
type Practice struct {
	Session *Session
	Bus     bus.Bus

	quizKey string
	history HistoryStore
	clock   func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	finalized bool
	result    PracticeResult
}

// PracticeResult summarizes a finished run.
type PracticeResult struct {
	Score     int   `json:"score"`
	TotalMs   int64 `json:"totalMs"`
	NewBest   bool  `json:"newBest"`
	BestScore int   `json:"bestScore"`
	Attempts  int   `json:"attempts"`
}

// NewPractice wires a practice session over a fresh local bus.
func NewPractice(quizKey, playerName string, quiz domain.Quiz, history HistoryStore, opts ...Option) (*Practice, error) {
	eventBus := bus.NewLocal()
	p := &Practice{
		Bus:     eventBus,
		quizKey: quizKey,
		history: history,
		clock:   time.Now,
	}

	opts = append(opts, WithAutoAdvance())
	p.Session = New("", quiz, busEmitter{bus: eventBus}, opts...)
	// keep the practice clock in step with an injected session clock
	p.clock = p.Session.now

	if err := p.Session.Join(PracticePlayerID, playerName); err != nil {
		eventBus.Disconnect()
		return nil, err
	}

	eventBus.On("game-end", func(json.RawMessage) {
		p.finalize()
	})
	return p, nil
}

// NewPracticeWithRand is a convenience for deterministic tests.
func NewPracticeWithRand(quizKey, playerName string, quiz domain.Quiz, history HistoryStore, rnd *rand.Rand, now func() time.Time) (*Practice, error) {
	return NewPractice(quizKey, playerName, quiz, history, WithRand(rnd), WithClock(now))
}

// Start begins the run.
func (p *Practice) Start() error {
	p.mu.Lock()
	p.startedAt = p.clock()
	p.mu.Unlock()
	return p.Session.Start()
}

// SubmitAnswer forwards to the underlying session for the practice player.
func (p *Practice) SubmitAnswer(raw json.RawMessage) error {
	return p.Session.SubmitAnswer(PracticePlayerID, raw)
}

// UsePowerUp forwards to the underlying session for the practice player.
func (p *Practice) UsePowerUp(kind domain.PowerUpKind, extraSeconds int) error {
	return p.Session.UsePowerUp(PracticePlayerID, kind, extraSeconds)
}

// Result returns the final summary once the run ended.
func (p *Practice) Result() (PracticeResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.finalized
}

// finalize updates the practice history exactly once per run. A new personal
// best is recorded when the final score strictly exceeds the previous best.
func (p *Practice) finalize() {
	p.mu.Lock()
	if p.finalized {
		p.mu.Unlock()
		return
	}
	p.finalized = true
	startedAt := p.startedAt
	p.mu.Unlock()

	lb := p.Session.Leaderboard()
	score := 0
	var totalMs int64
	if len(lb.Entries) > 0 {
		score = lb.Entries[0].Score
		totalMs = lb.Entries[0].TotalResponseMs
	}
	if totalMs == 0 && !startedAt.IsZero() {
		totalMs = p.clock().Sub(startedAt).Milliseconds()
	}

	ctx := context.Background()
	record, found, err := p.history.Get(ctx, p.quizKey)
	if err != nil {
		log.Printf("practice history read %q: %v", p.quizKey, err)
	}
	if !found {
		record = domain.PracticeHistory{QuizKey: p.quizKey}
	}

	newBest := !found || score > record.BestScore
	if newBest {
		record.BestScore = score
		record.BestTimeMs = totalMs
	}
	record.Attempts++
	record.LastPlayedIso = p.clock().UTC().Format(time.RFC3339)

	if err := p.history.Put(ctx, record); err != nil {
		log.Printf("practice history write %q: %v", p.quizKey, err)
	}

	result := PracticeResult{
		Score:     score,
		TotalMs:   totalMs,
		NewBest:   newBest,
		BestScore: record.BestScore,
		Attempts:  record.Attempts,
	}

	p.mu.Lock()
	p.result = result
	p.mu.Unlock()

	p.Bus.Emit("practice-result", result)
}

// Close tears down the session and the local bus.
func (p *Practice) Close() {
	p.Session.Close()
	p.Bus.Disconnect()
}
