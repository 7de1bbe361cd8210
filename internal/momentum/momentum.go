// Package momentum classifies short-term task-completion velocity into a
// small closed set of states. The state is recomputed from a rolling window
// on every call; nothing is mutated incrementally except the display log.
package momentum

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// State is the momentum classification.
type State string

const (
	Accelerating State = "accelerating"
	Steady       State = "steady"
	Stalling     State = "stalling"
	Recovering   State = "recovering"
)

// Timing tolerances for classifying a completion against its scheduled end.
const (
	EarlyMargin = 10 * time.Minute
	LateMargin  = 5 * time.Minute
)

// Classification thresholds.
const (
	recentDays      = 2
	shiftThreshold  = 0.15
	lowPriorRate    = 0.5
	lateRatioStall  = 0.5
	streakRateFloor = 0.5
)

// DayStats summarizes one day's plan.
type DayStats struct {
	Date      time.Time `json:"date"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	OnTime    int       `json:"on_time"`
	Early     int       `json:"early"`
	Late      int       `json:"late"`
}

// CompletionRate is Completed/Total, or 0 for an empty day.
func (d DayStats) CompletionRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Completed) / float64(d.Total)
}

// DayStatsFromPlan counts the plan's tasks as they stood at asOf.
// Completions recorded after asOf are ignored. A task that is still open and
// scheduled to end after asOf is not due yet and is left out, so an
// unfinished day is rated only on the work due so far.
func DayStatsFromPlan(plan *models.DailyPlan, asOf time.Time) DayStats {
	ds := DayStats{Date: plan.Date}
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		done := t.Completed && t.CompletedAt != nil && !t.CompletedAt.After(asOf)
		if !done && t.ScheduledEnd != nil && t.ScheduledEnd.After(asOf) {
			continue
		}
		ds.Total++
		if !done {
			continue
		}
		ds.Completed++
		switch timing(t) {
		case timingEarly:
			ds.Early++
		case timingLate:
			ds.Late++
		default:
			ds.OnTime++
		}
	}
	return ds
}

type completionTiming int

const (
	timingOnTime completionTiming = iota
	timingEarly
	timingLate
)

func timing(t *models.PlanTask) completionTiming {
	if t.ScheduledEnd != nil {
		diff := t.CompletedAt.Sub(*t.ScheduledEnd)
		switch {
		case diff <= -EarlyMargin:
			return timingEarly
		case diff > LateMargin:
			return timingLate
		}
		return timingOnTime
	}
	if t.ActualMinutes != nil {
		diff := time.Duration(*t.ActualMinutes-t.EstimatedMinutes) * time.Minute
		switch {
		case diff <= -EarlyMargin:
			return timingEarly
		case diff > LateMargin:
			return timingLate
		}
	}
	return timingOnTime
}

// Metrics is the momentum state plus the figures it was derived from.
type Metrics struct {
	State                State   `json:"state"`
	TrendDescription     string  `json:"trend_description"`
	DaysAnalyzed         int     `json:"days_analyzed"`
	RecentCompletionRate float64 `json:"recent_completion_rate"`
	PriorCompletionRate  float64 `json:"prior_completion_rate"`
	OnTimeRate           float64 `json:"on_time_rate"`
	EarlyCount           int     `json:"early_count"`
	OnTimeCount          int     `json:"on_time_count"`
	LateCount            int     `json:"late_count"`
	StreakDays           int     `json:"streak_days"`
}

// Classify derives momentum from per-day stats in any order. Days without
// tasks are ignored.
func Classify(days []DayStats) Metrics {
	active := make([]DayStats, 0, len(days))
	for _, d := range days {
		if d.Total > 0 {
			active = append(active, d)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Date.Before(active[j].Date) })

	m := Metrics{DaysAnalyzed: len(active)}
	for _, d := range active {
		m.EarlyCount += d.Early
		m.OnTimeCount += d.OnTime
		m.LateCount += d.Late
	}
	if done := m.EarlyCount + m.OnTimeCount + m.LateCount; done > 0 {
		m.OnTimeRate = round2(float64(m.EarlyCount+m.OnTimeCount) / float64(done))
	}
	for i := len(active) - 1; i >= 0 && active[i].CompletionRate() >= streakRateFloor; i-- {
		m.StreakDays++
	}

	if len(active) < 2 {
		m.State = Steady
		if len(active) == 1 {
			m.RecentCompletionRate = round2(active[0].CompletionRate())
		}
		m.TrendDescription = "not enough history yet to judge momentum"
		return m
	}

	split := len(active) - recentDays
	if split < 1 {
		split = 1
	}
	recent, prior := active[split:], active[:split]
	recentRate, priorRate := meanRate(recent), meanRate(prior)
	m.RecentCompletionRate = round2(recentRate)
	m.PriorCompletionRate = round2(priorRate)

	var recentLate, recentDone int
	for _, d := range recent {
		recentLate += d.Late
		recentDone += d.Completed
	}
	lateHeavy := recentDone > 0 && float64(recentLate)/float64(recentDone) > lateRatioStall

	delta := recentRate - priorRate
	switch {
	case delta >= shiftThreshold && priorRate < lowPriorRate:
		m.State = Recovering
		m.TrendDescription = fmt.Sprintf("bouncing back: completion up from %.0f%% to %.0f%%", priorRate*100, recentRate*100)
	case delta >= shiftThreshold:
		m.State = Accelerating
		m.TrendDescription = fmt.Sprintf("picking up pace: completion up from %.0f%% to %.0f%%", priorRate*100, recentRate*100)
	case delta <= -shiftThreshold:
		m.State = Stalling
		m.TrendDescription = fmt.Sprintf("slowing down: completion down from %.0f%% to %.0f%%", priorRate*100, recentRate*100)
	case lateHeavy:
		m.State = Stalling
		m.TrendDescription = "most recent completions landed late"
	default:
		m.State = Steady
		m.TrendDescription = fmt.Sprintf("holding steady around %.0f%% completion", recentRate*100)
	}
	return m
}

func meanRate(days []DayStats) float64 {
	if len(days) == 0 {
		return 0
	}
	var sum float64
	for _, d := range days {
		sum += d.CompletionRate()
	}
	return sum / float64(len(days))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DisplayMessage renders metrics as a one-line summary.
func DisplayMessage(m Metrics) string {
	var lead string
	switch m.State {
	case Accelerating:
		lead = "You're building momentum"
	case Recovering:
		lead = "You're getting back on track"
	case Stalling:
		lead = "Momentum is slipping"
	default:
		lead = "You're keeping a steady pace"
	}
	msg := fmt.Sprintf("%s: %s.", lead, m.TrendDescription)
	if m.StreakDays > 1 {
		msg += fmt.Sprintf(" %d solid days in a row.", m.StreakDays)
	}
	if m.State == Stalling {
		msg += " Consider a lighter plan or fewer tasks tomorrow."
	}
	return msg
}
