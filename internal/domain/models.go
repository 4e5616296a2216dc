package domain

import (
	"encoding/json"
	"time"
)

// ScoringConfig controls award computation for a quiz.
type ScoringConfig struct {
	TimeBonus            bool    `json:"timeBonus"`
	TimeBonusThresholdMs int     `json:"timeBonusThreshold"`
	EasyMultiplier       float64 `json:"easyMultiplier"`
	MediumMultiplier     float64 `json:"mediumMultiplier"`
	HardMultiplier       float64 `json:"hardMultiplier"`
}

// DefaultScoringConfig returns production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		TimeBonus:            true,
		TimeBonusThresholdMs: 10000,
		EasyMultiplier:       1,
		MediumMultiplier:     1.5,
		HardMultiplier:       2,
	}
}

// Multiplier resolves the difficulty multiplier, defaulting missing values.
func (c ScoringConfig) Multiplier(d Difficulty) float64 {
	pick := func(v, fallback float64) float64 {
		if v <= 0 {
			return fallback
		}
		return v
	}
	switch d {
	case DifficultyEasy:
		return pick(c.EasyMultiplier, 1)
	case DifficultyHard:
		return pick(c.HardMultiplier, 2)
	default:
		return pick(c.MediumMultiplier, 1.5)
	}
}

// Quiz is the persisted quiz document.
type Quiz struct {
	Title              string        `json:"title"`
	Questions          []Question    `json:"questions"`
	ManualAdvancement  bool          `json:"manualAdvancement"`
	RandomizeQuestions bool          `json:"randomizeQuestions"`
	RandomizeAnswers   bool          `json:"randomizeAnswers"`
	SameTimeForAll     bool          `json:"sameTimeForAll"`
	QuestionTime       int           `json:"questionTime"`
	PowerUpsEnabled    bool          `json:"powerUpsEnabled"`
	ScoringConfig      ScoringConfig `json:"scoringConfig"`
}

// UnmarshalJSON fills in DefaultScoringConfig for documents that omit the
// scoringConfig block. An explicit block is taken as written.
func (q *Quiz) UnmarshalJSON(data []byte) error {
	type quizAlias Quiz
	aux := struct {
		*quizAlias
		ScoringConfig *ScoringConfig `json:"scoringConfig"`
	}{quizAlias: (*quizAlias)(q)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ScoringConfig != nil {
		q.ScoringConfig = *aux.ScoringConfig
	} else {
		q.ScoringConfig = DefaultScoringConfig()
	}
	return nil
}

// PowerUpKind names a one-shot per-player modifier.
type PowerUpKind string

const (
	PowerUpFiftyFifty   PowerUpKind = "fifty-fifty"
	PowerUpExtendTime   PowerUpKind = "extend-time"
	PowerUpDoublePoints PowerUpKind = "double-points"
)

// AllPowerUps is the full per-game inventory granted on join.
func AllPowerUps() map[PowerUpKind]bool {
	return map[PowerUpKind]bool{
		PowerUpFiftyFifty:   true,
		PowerUpExtendTime:   true,
		PowerUpDoublePoints: true,
	}
}

// Player is session-scoped state owned by the game session.
type Player struct {
	ID                string
	Name              string
	Score             int
	Streak            int
	AnsweredCurrent   bool
	ResponseTimeMs    int64
	TotalResponseMs   int64
	DoublePointsArmed bool
	Left              bool
	PowerUps          map[PowerUpKind]bool // true = still available
}

// GamePhase enumerates the session state machine phases.
type GamePhase string

const (
	PhaseLobby     GamePhase = "lobby"
	PhasePlaying   GamePhase = "playing"
	PhaseQuestion  GamePhase = "question"
	PhaseRevealing GamePhase = "revealing"
	PhaseBetween   GamePhase = "between"
	PhaseFinished  GamePhase = "finished"
)

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	PlayerID        string `json:"playerId"`
	Name            string `json:"name"`
	Score           int    `json:"score"`
	Streak          int    `json:"streak"`
	TotalResponseMs int64  `json:"totalResponseMs"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	PIN       string             `json:"pin,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerStatistics accompanies the reveal payload. OptionCounts covers the
// option-indexed kinds; Values carries the raw numeric submissions.
type AnswerStatistics struct {
	OptionCounts map[int]int `json:"optionCounts,omitempty"`
	Values       []float64   `json:"values,omitempty"`
	Answered     int         `json:"answered"`
	Total        int         `json:"total"`
}

// PracticeHistory is the locally persisted per-quiz practice record.
type PracticeHistory struct {
	QuizKey       string `json:"quizKey"`
	BestScore     int    `json:"bestScore"`
	BestTimeMs    int64  `json:"bestTimeMs"`
	Attempts      int    `json:"attempts"`
	LastPlayedIso string `json:"lastPlayedIso"`
}
