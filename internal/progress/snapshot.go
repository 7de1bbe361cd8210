// Package progress tracks live execution of a plan: task start and
// completion events, point-in-time snapshots and per-day history.
package progress

import (
	"math"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// Status classifies a snapshot.
type Status string

const (
	StatusAhead   Status = "ahead"
	StatusOnTrack Status = "on_track"
	StatusBehind  Status = "behind"
	StatusAtRisk  Status = "at_risk"
)

// Thresholds tune status classification. Zero values use the defaults.
type Thresholds struct {
	AheadMinutes  int // strictly more than this many minutes ahead is "ahead"
	AtRiskMinutes int // strictly more than this many minutes behind is "at_risk"
}

func (t Thresholds) withDefaults() Thresholds {
	if t.AheadMinutes <= 0 {
		t.AheadMinutes = 15
	}
	if t.AtRiskMinutes <= 0 {
		t.AtRiskMinutes = 30
	}
	return t
}

// Snapshot is the derived state of a plan at one instant.
type Snapshot struct {
	PlanID             uint      `json:"plan_id"`
	Date               time.Time `json:"date"`
	AsOf               time.Time `json:"as_of"`
	TotalTasks         int       `json:"total_tasks"`
	CompletedTasks     int       `json:"completed_tasks"`
	SkippedTasks       int       `json:"skipped_tasks"`
	InProgressTasks    int       `json:"in_progress_tasks"`
	DeferredTasks      int       `json:"deferred_tasks"`
	RemainingTasks     int       `json:"remaining_tasks"`
	RemainingMinutes   int       `json:"remaining_minutes"`
	MinutesAheadBehind int       `json:"minutes_ahead_behind"`
	OverallProgress    int       `json:"overall_progress"`
	MomentumState      string    `json:"momentum_state,omitempty"`
	Status             Status    `json:"status"`
}

// Summarize derives a snapshot of plan at now. Momentum is left empty.
//
// Completed tasks contribute estimated minus actual minutes. In-progress tasks
// that have run past their estimate contribute the overrun. Incomplete,
// non-deferred tasks whose scheduled end has passed are skipped, whether or
// not they were started.
func Summarize(plan *models.DailyPlan, now time.Time, th Thresholds) Snapshot {
	th = th.withDefaults()
	s := Snapshot{PlanID: plan.ID, Date: plan.Date, AsOf: now}

	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		s.TotalTasks++

		if t.Completed {
			s.CompletedTasks++
			if t.ActualMinutes != nil {
				s.MinutesAheadBehind += t.EstimatedMinutes - *t.ActualMinutes
			}
			continue
		}

		s.RemainingTasks++
		left := t.EstimatedMinutes
		if t.InProgress() {
			s.InProgressTasks++
			elapsed := int(now.Sub(*t.StartedAt).Minutes())
			if elapsed > t.EstimatedMinutes {
				s.MinutesAheadBehind += t.EstimatedMinutes - elapsed
			}
			left = max(t.EstimatedMinutes-elapsed, 0)
		}
		s.RemainingMinutes += left

		switch {
		case t.Deferred:
			s.DeferredTasks++
		case t.ScheduledEnd != nil && t.ScheduledEnd.Before(now):
			s.SkippedTasks++
		}
	}

	if s.TotalTasks > 0 {
		s.OverallProgress = int(math.Round(float64(s.CompletedTasks) / float64(s.TotalTasks) * 100))
	}
	s.Status = classify(s, th)
	return s
}

func classify(s Snapshot, th Thresholds) Status {
	switch {
	case s.SkippedTasks > 0 || s.MinutesAheadBehind < -th.AtRiskMinutes:
		return StatusAtRisk
	case s.MinutesAheadBehind > th.AheadMinutes:
		return StatusAhead
	case s.MinutesAheadBehind < 0:
		return StatusBehind
	default:
		return StatusOnTrack
	}
}
