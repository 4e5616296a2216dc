// Package scoring computes answer awards. Everything here is pure: the
// session feeds in correctness, response time and flags, and gets points back.
package scoring

import (
	"math"

	"quizhub/internal/domain"
)

const (
	// BasePoints is the raw value of a correct answer before multipliers.
	BasePoints = 100
	// MaxBonusTimeMs is the window over which the time bonus decays to zero.
	MaxBonusTimeMs = 10000
)

// Input carries one submission's scoring parameters.
type Input struct {
	// Correctness is 0, 1, or a partial-credit fraction (ordering).
	Correctness float64
	// ResponseTimeMs is the time from question start to submission.
	ResponseTimeMs int64
	Difficulty     domain.Difficulty
	DoublePoints   bool
	Config         domain.ScoringConfig
}

// Award computes the points for a submission.
//
// base = BasePoints x difficulty multiplier
// bonus = base x 0.5 x max(0, (MaxBonusTime - rt)/MaxBonusTime) when the time
// bonus is enabled and rt is inside the threshold
// award = round((base + bonus) x doubleFactor) x correctness
func Award(in Input) int {
	if in.Correctness <= 0 {
		return 0
	}

	base := float64(BasePoints) * in.Config.Multiplier(in.Difficulty)

	bonus := 0.0
	threshold := in.Config.TimeBonusThresholdMs
	if threshold <= 0 {
		threshold = MaxBonusTimeMs
	}
	if in.Config.TimeBonus && in.ResponseTimeMs <= int64(threshold) {
		remaining := float64(MaxBonusTimeMs-in.ResponseTimeMs) / float64(MaxBonusTimeMs)
		if remaining < 0 {
			remaining = 0
		}
		bonus = base * 0.5 * remaining
	}

	total := base + bonus
	if in.DoublePoints {
		total *= 2
	}

	return int(math.Round(math.Round(total) * in.Correctness))
}
