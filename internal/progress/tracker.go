package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
)

// MaxHistoryDays bounds GetProgressHistory.
const MaxHistoryDays = 90

// Store is the persistence the tracker needs.
type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetPlan(ctx context.Context, planID uint) (*models.DailyPlan, error)
	GetTask(ctx context.Context, taskID uint) (*models.PlanTask, error)
	SaveTask(ctx context.Context, task *models.PlanTask) error
	ListLatestPlans(ctx context.Context, userID uint, from, to time.Time) ([]models.DailyPlan, error)
}

// MomentumSource supplies the user's current momentum.
type MomentumSource interface {
	Calculate(ctx context.Context, userID uint, now time.Time) (momentum.Metrics, error)
}

// Tracker records task events and derives progress snapshots.
type Tracker struct {
	store          Store
	momentum       MomentumSource
	thresholds     Thresholds
	momentumWindow int
}

// NewTracker builds a Tracker. momentumWindow is the number of days used to
// classify momentum for history entries.
func NewTracker(store Store, ms MomentumSource, th Thresholds, momentumWindow int) *Tracker {
	if momentumWindow <= 0 {
		momentumWindow = 7
	}
	return &Tracker{store: store, momentum: ms, thresholds: th.withDefaults(), momentumWindow: momentumWindow}
}

// Thresholds returns the effective status thresholds.
func (t *Tracker) Thresholds() Thresholds { return t.thresholds }

// RecordTaskStart marks the task started at ts. The first recorded start
// wins; later calls and calls on completed tasks leave the task unchanged.
func (t *Tracker) RecordTaskStart(ctx context.Context, taskID uint, ts time.Time) (*models.PlanTask, error) {
	if ts.IsZero() {
		return nil, apperr.Validation("timestamp", "is required")
	}
	task, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Completed || task.StartedAt != nil {
		return task, nil
	}

	started := ts.UTC()
	task.StartedAt = &started
	if err := t.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task start: %w", err)
	}
	return task, nil
}

// Completion reports the time-tracking outcome of a completion event.
type Completion struct {
	Task             *models.PlanTask `json:"task"`
	ActualMinutes    int              `json:"actual_minutes"`
	EstimatedMinutes int              `json:"estimated_minutes"`
	DeltaMinutes     int              `json:"delta_minutes"` // estimated - actual, positive means faster than planned
	Measured         bool             `json:"measured"`      // false when no start was recorded and the estimate was used
	AlreadyCompleted bool             `json:"already_completed"`
}

// RecordTaskCompletion marks the task completed at ts and computes actual
// minutes from the recorded start, falling back to the estimate. Completing
// an already-completed task changes nothing and returns the stored values.
func (t *Tracker) RecordTaskCompletion(ctx context.Context, taskID uint, ts time.Time) (*Completion, error) {
	if ts.IsZero() {
		return nil, apperr.Validation("timestamp", "is required")
	}
	task, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Completed {
		c := &Completion{Task: task, EstimatedMinutes: task.EstimatedMinutes, AlreadyCompleted: true}
		if task.ActualMinutes != nil {
			c.ActualMinutes = *task.ActualMinutes
			c.Measured = task.StartedAt != nil
		} else {
			c.ActualMinutes = task.EstimatedMinutes
		}
		c.DeltaMinutes = c.EstimatedMinutes - c.ActualMinutes
		return c, nil
	}

	actual, measured, err := actualMinutes(task, ts)
	if err != nil {
		return nil, err
	}

	done := ts.UTC()
	task.Completed = true
	task.CompletedAt = &done
	task.ActualMinutes = &actual
	if err := t.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task completion: %w", err)
	}

	return &Completion{
		Task:             task,
		ActualMinutes:    actual,
		EstimatedMinutes: task.EstimatedMinutes,
		DeltaMinutes:     task.EstimatedMinutes - actual,
		Measured:         measured,
	}, nil
}

func actualMinutes(task *models.PlanTask, ts time.Time) (int, bool, error) {
	if task.StartedAt == nil {
		return task.EstimatedMinutes, false, nil
	}
	if ts.Before(*task.StartedAt) {
		return 0, false, apperr.Validation("timestamp", "completion %s is before recorded start %s",
			ts.UTC().Format(time.RFC3339), task.StartedAt.UTC().Format(time.RFC3339))
	}
	minutes := int(math.Round(ts.Sub(*task.StartedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, true, nil
}

// RecordTaskReopen clears a task's completion. The recorded start is kept.
func (t *Tracker) RecordTaskReopen(ctx context.Context, taskID uint) (*models.PlanTask, error) {
	task, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Completed {
		return task, nil
	}
	task.Completed = false
	task.CompletedAt = nil
	task.ActualMinutes = nil
	if err := t.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to reopen task: %w", err)
	}
	return task, nil
}

// GetProgressSummary returns the plan's snapshot at now, including the
// owner's current momentum.
func (t *Tracker) GetProgressSummary(ctx context.Context, planID uint, now time.Time) (*Snapshot, error) {
	plan, err := t.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	s := Summarize(plan, now, t.thresholds)

	if t.momentum != nil {
		m, err := t.momentum.Calculate(ctx, plan.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate momentum: %w", err)
		}
		s.MomentumState = string(m.State)
	}
	return &s, nil
}

// GetProgressHistory returns one snapshot per day with a plan over the last
// days days, oldest first. Past days are evaluated at the end of the day,
// today at now.
func (t *Tracker) GetProgressHistory(ctx context.Context, userID uint, days int, now time.Time) ([]Snapshot, error) {
	if days < 1 || days > MaxHistoryDays {
		return nil, apperr.Validation("days", "must be between 1 and %d, got %d", MaxHistoryDays, days)
	}
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc := user.Location()
	today := models.DayKey(now, loc)
	from := today.AddDate(0, 0, -(days - 1))

	// Load extra leading days so each entry can classify its own momentum.
	plans, err := t.store.ListLatestPlans(ctx, userID, from.AddDate(0, 0, -(t.momentumWindow-1)), today)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan history: %w", err)
	}

	history := make([]Snapshot, 0, days)
	for i := range plans {
		plan := &plans[i]
		if plan.Date.Before(from) {
			continue
		}
		_, end := models.DayBounds(plan.Date, loc)
		asOf := end.Add(-time.Nanosecond)
		if now.Before(asOf) {
			asOf = now
		}

		s := Summarize(plan, asOf, t.thresholds)
		s.MomentumState = string(momentumAsOf(plans, plan.Date, t.momentumWindow, asOf).State)
		history = append(history, s)
	}
	return history, nil
}

func momentumAsOf(plans []models.DailyPlan, day time.Time, window int, asOf time.Time) momentum.Metrics {
	start := day.AddDate(0, 0, -(window - 1))
	var stats []momentum.DayStats
	for i := range plans {
		d := plans[i].Date
		if d.Before(start) || d.After(day) {
			continue
		}
		stats = append(stats, momentum.DayStatsFromPlan(&plans[i], asOf))
	}
	return momentum.Classify(stats)
}
