// Package patterns analyzes a window of check-ins: per-dimension trends,
// weekday regularities, a next-day capacity forecast and factor correlations.
// Every function is pure and tolerates empty input.
package patterns

import (
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// Dimension names used across results.
const (
	DimEnergy   = "energy"
	DimSleep    = "sleep"
	DimStress   = "stress"
	DimMood     = "mood"
	DimCapacity = "capacity"
)

// Direction of a trend.
type Direction string

const (
	Rising           Direction = "rising"
	Falling          Direction = "falling"
	Flat             Direction = "flat"
	InsufficientData Direction = "insufficient_data"
)

// Detector holds the tuning knobs. The zero value is usable.
type Detector struct {
	Window                 int     // check-ins used for trends, prediction and factors
	WeekdayWindow          int     // check-ins scanned for weekday regularities
	WeekdayMinSamples      int     // samples a weekday needs before it can be flagged
	WeekdayDeviation       float64 // capacity points from the mean that count as a regularity
	LevelSlopeThreshold    float64 // per-day slope on a 1-10 scale that counts as a trend
	CapacitySlopeThreshold float64 // per-day slope of the capacity score that counts as a trend
	RecoveryStreakMin      int     // consecutive recent recovery days worth flagging
}

// NewDetector returns a Detector with defaults applied.
func NewDetector() *Detector {
	return (&Detector{}).withDefaults()
}

func (d *Detector) withDefaults() *Detector {
	out := *d
	if out.Window <= 0 {
		out.Window = 7
	}
	if out.WeekdayWindow <= 0 {
		out.WeekdayWindow = 28
	}
	if out.WeekdayMinSamples <= 0 {
		out.WeekdayMinSamples = 2
	}
	if out.WeekdayDeviation <= 0 {
		out.WeekdayDeviation = 10
	}
	if out.LevelSlopeThreshold <= 0 {
		out.LevelSlopeThreshold = 0.25
	}
	if out.CapacitySlopeThreshold <= 0 {
		out.CapacitySlopeThreshold = 2.0
	}
	if out.RecoveryStreakMin <= 0 {
		out.RecoveryStreakMin = 3
	}
	return &out
}

// chronological returns a date-ascending copy of history with one entry per
// day (the latest-updated wins), trimmed to the newest limit entries.
func chronological(history []models.CheckIn, limit int) []models.CheckIn {
	byDay := make(map[time.Time]models.CheckIn, len(history))
	for _, c := range history {
		key := models.DayKey(c.Date, time.UTC)
		if prev, ok := byDay[key]; ok && prev.UpdatedAt.After(c.UpdatedAt) {
			continue
		}
		byDay[key] = c
	}

	out := make([]models.CheckIn, 0, len(byDay))
	for _, c := range byDay {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// dayOffsets returns each entry's distance in days from the first entry.
func dayOffsets(history []models.CheckIn) []float64 {
	xs := make([]float64, len(history))
	if len(history) == 0 {
		return xs
	}
	first := history[0].Date
	for i, c := range history {
		xs[i] = c.Date.Sub(first).Hours() / 24
	}
	return xs
}

func series(history []models.CheckIn, dim string) []float64 {
	ys := make([]float64, len(history))
	for i, c := range history {
		switch dim {
		case DimEnergy:
			ys[i] = float64(c.EnergyLevel)
		case DimSleep:
			ys[i] = float64(c.SleepQuality)
		case DimStress:
			ys[i] = float64(c.StressLevel)
		case DimMood:
			ys[i] = moodValue(c.Mood)
		case DimCapacity:
			ys[i] = float64(c.CapacityScore)
		}
	}
	return ys
}

func moodValue(m models.Mood) float64 {
	switch m {
	case models.MoodPositive:
		return 1.0
	case models.MoodNeutral:
		return 0.5
	default:
		return 0.0
	}
}
