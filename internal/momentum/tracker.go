package momentum

import (
	"context"
	"fmt"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// PlanHistory loads the newest plan of each day in [from, to].
type PlanHistory interface {
	ListLatestPlans(ctx context.Context, userID uint, from, to time.Time) ([]models.DailyPlan, error)
}

// UserStore reads users and persists their momentum log.
type UserStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	SaveMomentumLog(ctx context.Context, userID uint, log models.MomentumLog) error
}

// Tracker computes momentum for one user at a time.
type Tracker struct {
	plans   PlanHistory
	users   UserStore
	window  int
	logSize int
}

// NewTracker builds a Tracker over a window of days. Non-positive values use
// 7 days and models.DefaultMomentumLogSize entries.
func NewTracker(plans PlanHistory, users UserStore, windowDays, logSize int) *Tracker {
	if windowDays <= 0 {
		windowDays = 7
	}
	if logSize <= 0 {
		logSize = models.DefaultMomentumLogSize
	}
	return &Tracker{plans: plans, users: users, window: windowDays, logSize: logSize}
}

// Calculate returns the user's momentum as of now without recording it.
func (t *Tracker) Calculate(ctx context.Context, userID uint, now time.Time) (Metrics, error) {
	user, err := t.users.GetUser(ctx, userID)
	if err != nil {
		return Metrics{}, err
	}
	return t.calculate(ctx, user, now)
}

func (t *Tracker) calculate(ctx context.Context, user *models.User, now time.Time) (Metrics, error) {
	today := models.DayKey(now, user.Location())
	from := today.AddDate(0, 0, -(t.window - 1))

	plans, err := t.plans.ListLatestPlans(ctx, user.ID, from, today)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to load plan history: %w", err)
	}

	days := make([]DayStats, 0, len(plans))
	for i := range plans {
		days = append(days, DayStatsFromPlan(&plans[i], now))
	}
	return Classify(days), nil
}

// CalculateMomentumState computes momentum and appends it to the user's
// bounded momentum log.
func (t *Tracker) CalculateMomentumState(ctx context.Context, userID uint, now time.Time) (Metrics, error) {
	user, err := t.users.GetUser(ctx, userID)
	if err != nil {
		return Metrics{}, err
	}
	m, err := t.calculate(ctx, user, now)
	if err != nil {
		return Metrics{}, err
	}

	entry := models.MomentumEntry{
		RecordedAt:           now.UTC(),
		State:                string(m.State),
		RecentCompletionRate: m.RecentCompletionRate,
		OnTimeRate:           m.OnTimeRate,
	}
	if err := t.users.SaveMomentumLog(ctx, user.ID, user.MomentumLog.Append(entry, t.logSize)); err != nil {
		return Metrics{}, fmt.Errorf("failed to record momentum: %w", err)
	}
	return m, nil
}

// History returns the user's recorded momentum log, oldest first.
func (t *Tracker) History(ctx context.Context, userID uint) (models.MomentumLog, error) {
	user, err := t.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.MomentumLog, nil
}
