// Package adjustment compares reported capacity with what users actually
// completed and maintains a per-user bias that shifts future predictions.
package adjustment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
)

// Direction summarizes the sign of the observed bias.
type Direction string

const (
	Overestimates    Direction = "overestimates"
	Underestimates   Direction = "underestimates"
	Calibrated       Direction = "calibrated"
	InsufficientData Direction = "insufficient_data"
)

// Settings tune the learning loop. Zero values use the defaults.
type Settings struct {
	WindowDays     int     // past days considered, today excluded
	MinSamples     int     // fewer samples than this produce no correction
	Damping        float64 // fraction of the mean error applied as bias
	MaxBias        float64 // absolute bound on the bias
	CalibratedBand float64 // |mean error| within this band counts as calibrated
}

func (s Settings) withDefaults() Settings {
	if s.WindowDays <= 0 {
		s.WindowDays = 14
	}
	if s.MinSamples <= 0 {
		s.MinSamples = 3
	}
	if s.Damping <= 0 {
		s.Damping = 0.5
	}
	if s.MaxBias <= 0 {
		s.MaxBias = 15
	}
	if s.CalibratedBand <= 0 {
		s.CalibratedBand = 10
	}
	return s
}

// Store is the persistence the adjuster needs.
type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	ListCheckIns(ctx context.Context, userID uint, from, to time.Time) ([]models.CheckIn, error)
	ListLatestPlans(ctx context.Context, userID uint, from, to time.Time) ([]models.DailyPlan, error)
	SaveCapacityBias(ctx context.Context, userID uint, bias float64, samples int, at time.Time) error
}

// Sample pairs one day's capacity score with the completion rate achieved.
type Sample struct {
	Date           time.Time   `json:"date"`
	CapacityScore  int         `json:"capacity_score"`
	Mode           models.Mode `json:"mode"`
	CompletionRate float64     `json:"completion_rate"`
	Error          float64     `json:"error"` // completion rate x 100 - capacity score
}

// Adjustment is the correction suggested for a reported score.
type Adjustment struct {
	ReportedScore int     `json:"reported_score"`
	Delta         int     `json:"delta"`
	AdjustedScore int     `json:"adjusted_score"`
	Bias          float64 `json:"bias"`
	Samples       int     `json:"samples"`
	Reason        string  `json:"reason"`
}

// Adjuster runs the capacity feedback loop.
type Adjuster struct {
	store    Store
	settings Settings
}

// NewAdjuster builds an Adjuster.
func NewAdjuster(store Store, settings Settings) *Adjuster {
	return &Adjuster{store: store, settings: settings.withDefaults()}
}

// Samples collects the days in the window that have both a check-in and a
// plan with tasks, oldest first.
func (a *Adjuster) Samples(ctx context.Context, userID uint, now time.Time) ([]Sample, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := models.DayKey(now, user.Location())
	from := today.AddDate(0, 0, -a.settings.WindowDays)
	to := today.AddDate(0, 0, -1)

	checkIns, err := a.store.ListCheckIns(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}
	plans, err := a.store.ListLatestPlans(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}

	byDay := make(map[time.Time]*models.DailyPlan, len(plans))
	for i := range plans {
		if len(plans[i].Tasks) > 0 {
			byDay[plans[i].Date.UTC()] = &plans[i]
		}
	}

	samples := make([]Sample, 0, len(checkIns))
	for _, c := range checkIns {
		plan, ok := byDay[c.Date.UTC()]
		if !ok {
			continue
		}
		rate := momentum.DayStatsFromPlan(plan, now).CompletionRate()
		samples = append(samples, Sample{
			Date:           c.Date,
			CapacityScore:  c.CapacityScore,
			Mode:           c.Mode,
			CompletionRate: rate,
			Error:          rate*100 - float64(c.CapacityScore),
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Date.Before(samples[j].Date) })
	return samples, nil
}

// AdjustCapacityScore recomputes the user's bias from recent history, stores
// it on the user and returns the correction for reportedScore. Past check-ins
// are never modified.
func (a *Adjuster) AdjustCapacityScore(ctx context.Context, userID uint, reportedScore int, now time.Time) (*Adjustment, error) {
	if reportedScore < 0 || reportedScore > 100 {
		return nil, apperr.Validation("reported_score", "must be between 0 and 100, got %d", reportedScore)
	}
	bias, n, err := a.RecomputeBias(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	adj := &Adjustment{ReportedScore: reportedScore, AdjustedScore: reportedScore, Bias: bias, Samples: n}
	if n < a.settings.MinSamples {
		adj.Reason = fmt.Sprintf("Not enough history to adjust yet (%d of %d days with a check-in and a plan).",
			n, a.settings.MinSamples)
		return adj, nil
	}
	adj.Delta = int(math.Round(bias))
	adj.AdjustedScore = capacity.Clamp(reportedScore + adj.Delta)
	adj.Reason = adjustmentReason(adj.Delta, n)
	return adj, nil
}

// RecomputeBias refreshes and stores the user's bias and returns it with the
// number of samples behind it. The bias is 0 below MinSamples.
func (a *Adjuster) RecomputeBias(ctx context.Context, userID uint, now time.Time) (float64, int, error) {
	samples, err := a.Samples(ctx, userID, now)
	if err != nil {
		return 0, 0, err
	}
	bias := 0.0
	if len(samples) >= a.settings.MinSamples {
		bias = a.bias(samples)
	}
	if err := a.store.SaveCapacityBias(ctx, userID, bias, len(samples), now.UTC()); err != nil {
		return 0, 0, fmt.Errorf("failed to save capacity bias: %w", err)
	}
	return bias, len(samples), nil
}

func (a *Adjuster) bias(samples []Sample) float64 {
	b := meanError(samples) * a.settings.Damping
	b = math.Max(-a.settings.MaxBias, math.Min(a.settings.MaxBias, b))
	return math.Round(b*100) / 100
}

func meanError(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Error
	}
	return sum / float64(len(samples))
}

func adjustmentReason(delta, samples int) string {
	switch {
	case delta < 0:
		return fmt.Sprintf("Over the last %d days you completed less than your check-ins suggested; lowering by %d.", samples, -delta)
	case delta > 0:
		return fmt.Sprintf("Over the last %d days you completed more than your check-ins suggested; raising by %d.", samples, delta)
	default:
		return fmt.Sprintf("Your check-ins matched what you completed over the last %d days.", samples)
	}
}
