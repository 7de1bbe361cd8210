package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// Trend describes the direction of one dimension across the window.
type Trend struct {
	Dimension string    `json:"dimension"`
	Direction Direction `json:"direction"`
	Slope     float64   `json:"slope_per_day"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
}

// WeekdayPattern flags a weekday whose capacity reliably differs from the mean.
type WeekdayPattern struct {
	Weekday      time.Weekday `json:"weekday"`
	MeanCapacity float64      `json:"mean_capacity"`
	Deviation    float64      `json:"deviation"`
	Samples      int          `json:"samples"`
}

// Patterns is the result of DetectPatterns.
type Patterns struct {
	Sufficient           bool             `json:"sufficient"`
	Reason               string           `json:"reason,omitempty"`
	Days                 int              `json:"days"`
	Trends               []Trend          `json:"trends"`
	Weekdays             []WeekdayPattern `json:"weekdays,omitempty"`
	RecoveryStreak       int              `json:"recovery_streak"`
	NegativeMoodDominant bool             `json:"negative_mood_dominant"`
	Highlights           []string         `json:"highlights,omitempty"`
}

var trendDimensions = []string{DimEnergy, DimSleep, DimStress, DimCapacity}

// DetectPatterns finds directional trends over the newest Window check-ins
// and weekday regularities over the newest WeekdayWindow check-ins. History
// may be in any order.
func (d *Detector) DetectPatterns(history []models.CheckIn) Patterns {
	d = d.withDefaults()
	window := chronological(history, d.Window)

	p := Patterns{Days: len(window)}
	if len(window) < 2 {
		p.Reason = "insufficient data: at least 2 check-ins are needed for trends"
		if len(window) == 0 {
			p.Reason = "no check-in history"
		}
		for _, dim := range trendDimensions {
			t := Trend{Dimension: dim, Direction: InsufficientData}
			if len(window) == 1 {
				v := series(window, dim)[0]
				t.First, t.Last = v, v
			}
			p.Trends = append(p.Trends, t)
		}
		p.RecoveryStreak = recoveryStreak(window)
		return p
	}

	p.Sufficient = true
	xs := dayOffsets(window)
	for _, dim := range trendDimensions {
		ys := series(window, dim)
		s := slope(xs, ys)
		threshold := d.LevelSlopeThreshold
		if dim == DimCapacity {
			threshold = d.CapacitySlopeThreshold
		}
		t := Trend{
			Dimension: dim,
			Direction: classify(s, threshold),
			Slope:     round2(s),
			First:     ys[0],
			Last:      ys[len(ys)-1],
		}
		p.Trends = append(p.Trends, t)
		if t.Direction != Flat {
			p.Highlights = append(p.Highlights, fmt.Sprintf("%s is %s (%+.2f per day)", dim, t.Direction, t.Slope))
		}
	}

	p.Weekdays = d.weekdayPatterns(chronological(history, d.WeekdayWindow))
	for _, w := range p.Weekdays {
		p.Highlights = append(p.Highlights, fmt.Sprintf("%ss run %+.0f points from your average", w.Weekday, w.Deviation))
	}

	p.RecoveryStreak = recoveryStreak(window)
	if p.RecoveryStreak >= d.RecoveryStreakMin {
		p.Highlights = append(p.Highlights, fmt.Sprintf("%d days in a row in recovery mode", p.RecoveryStreak))
	}

	negative := 0
	for _, c := range window {
		if c.Mood == models.MoodNegative {
			negative++
		}
	}
	p.NegativeMoodDominant = negative*2 > len(window)
	if p.NegativeMoodDominant {
		p.Highlights = append(p.Highlights, "negative mood on most recent days")
	}

	return p
}

func classify(s, threshold float64) Direction {
	switch {
	case s >= threshold:
		return Rising
	case s <= -threshold:
		return Falling
	default:
		return Flat
	}
}

func (d *Detector) weekdayPatterns(history []models.CheckIn) []WeekdayPattern {
	if len(history) == 0 {
		return nil
	}
	overall := mean(series(history, DimCapacity))

	byDay := make(map[time.Weekday][]float64)
	for _, c := range history {
		wd := c.Date.Weekday()
		byDay[wd] = append(byDay[wd], float64(c.CapacityScore))
	}

	var out []WeekdayPattern
	for wd, scores := range byDay {
		if len(scores) < d.WeekdayMinSamples {
			continue
		}
		m := mean(scores)
		dev := m - overall
		if math.Abs(dev) < d.WeekdayDeviation {
			continue
		}
		out = append(out, WeekdayPattern{
			Weekday:      wd,
			MeanCapacity: round2(m),
			Deviation:    round2(dev),
			Samples:      len(scores),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out
}

// recoveryStreak counts consecutive most-recent entries in recovery mode.
func recoveryStreak(window []models.CheckIn) int {
	n := 0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Mode != models.ModeRecovery {
			break
		}
		n++
	}
	return n
}
