// Package capacity turns a daily self-assessment into a capacity score and
// an operating mode.
package capacity

import (
	"math"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// Input bounds for every 1-10 self-assessment scale.
const (
	MinLevel = 1
	MaxLevel = 10
)

// Scoring weights. They sum to 1.0 so scores stay within [0, 100].
const (
	WeightEnergy = 0.30
	WeightSleep  = 0.30
	WeightStress = 0.25
	WeightMood   = 0.15
)

// Mode thresholds.
const (
	BalancedThreshold = 40
	DeepWorkThreshold = 70
)

// Input is a validated self-assessment.
type Input struct {
	EnergyLevel  int
	SleepQuality int
	StressLevel  int
	Mood         models.Mood
}

// Validate rejects out-of-range levels and unknown moods.
func (in Input) Validate() error {
	levels := []struct {
		field string
		value int
	}{
		{"energy_level", in.EnergyLevel},
		{"sleep_quality", in.SleepQuality},
		{"stress_level", in.StressLevel},
	}
	for _, l := range levels {
		if l.value < MinLevel || l.value > MaxLevel {
			return apperr.Validation(l.field, "must be between %d and %d, got %d", MinLevel, MaxLevel, l.value)
		}
	}
	if !in.Mood.Valid() {
		return apperr.Validation("mood", "must be positive, neutral or negative, got %q", in.Mood)
	}
	return nil
}

// Normalize maps a 1-10 level onto [0, 1].
func Normalize(level int) float64 {
	return float64(level-MinLevel) / float64(MaxLevel-MinLevel)
}

// MoodModifier is the mood contribution before weighting.
func MoodModifier(m models.Mood) float64 {
	switch m {
	case models.MoodPositive:
		return 1.0
	case models.MoodNeutral:
		return 0.5
	default:
		return 0.0
	}
}

// Score computes the capacity score and mode. Inputs are assumed valid.
func Score(energyLevel, sleepQuality, stressLevel int, mood models.Mood) (int, models.Mode) {
	raw := Normalize(energyLevel)*WeightEnergy +
		Normalize(sleepQuality)*WeightSleep +
		(1-Normalize(stressLevel))*WeightStress +
		MoodModifier(mood)*WeightMood

	score := int(math.Round(raw * 100))
	return score, ModeFor(score)
}

// ScoreInput is Score over an Input.
func ScoreInput(in Input) (int, models.Mode) {
	return Score(in.EnergyLevel, in.SleepQuality, in.StressLevel, in.Mood)
}

// ModeFor partitions [0, 100] into the three modes.
func ModeFor(score int) models.Mode {
	switch {
	case score < BalancedThreshold:
		return models.ModeRecovery
	case score < DeepWorkThreshold:
		return models.ModeBalanced
	default:
		return models.ModeDeepWork
	}
}

// Clamp bounds a score to [0, 100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
