package adjustment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
)

// ModeAccuracy aggregates samples for one mode.
type ModeAccuracy struct {
	Samples            int     `json:"samples"`
	MeanCompletionRate float64 `json:"mean_completion_rate"`
	MeanError          float64 `json:"mean_error"`
}

// Insights is the user-facing summary of capacity accuracy.
type Insights struct {
	Samples      int                          `json:"samples"`
	MeanBias     float64                      `json:"mean_bias"`
	MeanAbsError float64                      `json:"mean_abs_error"`
	Direction    Direction                    `json:"direction"`
	PerMode      map[models.Mode]ModeAccuracy `json:"per_mode"`
	CurrentBias  float64                      `json:"current_bias"`
	Messages     []string                     `json:"messages"`
}

// GetCapacityInsights summarizes how well check-ins predicted completion.
func (a *Adjuster) GetCapacityInsights(ctx context.Context, userID uint, now time.Time) (*Insights, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	samples, err := a.Samples(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	in := &Insights{
		Samples:     len(samples),
		PerMode:     map[models.Mode]ModeAccuracy{},
		CurrentBias: user.CapacityBias,
	}
	if len(samples) < a.settings.MinSamples {
		in.Direction = InsufficientData
		in.Messages = []string{fmt.Sprintf("Log a check-in and a plan on %d more day(s) to see capacity insights.",
			a.settings.MinSamples-len(samples))}
		return in, nil
	}

	absSum := 0.0
	for _, s := range samples {
		absSum += math.Abs(s.Error)
	}
	in.MeanBias = round1(meanError(samples))
	in.MeanAbsError = round1(absSum / float64(len(samples)))
	in.Direction = a.direction(in.MeanBias)

	grouped := map[models.Mode][]Sample{}
	for _, s := range samples {
		grouped[s.Mode] = append(grouped[s.Mode], s)
	}
	for mode, ss := range grouped {
		rate := 0.0
		for _, s := range ss {
			rate += s.CompletionRate
		}
		in.PerMode[mode] = ModeAccuracy{
			Samples:            len(ss),
			MeanCompletionRate: round1(rate / float64(len(ss)) * 100),
			MeanError:          round1(meanError(ss)),
		}
	}

	in.Messages = insightMessages(in)
	return in, nil
}

func (a *Adjuster) direction(meanBias float64) Direction {
	switch {
	case meanBias < -a.settings.CalibratedBand:
		return Overestimates
	case meanBias > a.settings.CalibratedBand:
		return Underestimates
	default:
		return Calibrated
	}
}

func insightMessages(in *Insights) []string {
	var msgs []string
	switch in.Direction {
	case Overestimates:
		msgs = append(msgs, fmt.Sprintf("Your check-ins run about %.0f points above what you complete. Plans will be sized a little smaller.", -in.MeanBias))
	case Underestimates:
		msgs = append(msgs, fmt.Sprintf("You complete about %.0f points more than your check-ins suggest. You can take on more.", in.MeanBias))
	default:
		msgs = append(msgs, "Your check-ins closely match what you get done.")
	}

	for _, mode := range []models.Mode{models.ModeRecovery, models.ModeBalanced, models.ModeDeepWork} {
		acc, ok := in.PerMode[mode]
		if !ok || acc.Samples < 2 {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("On %s days you complete %.0f%% of planned tasks on average.", modeLabel(mode), acc.MeanCompletionRate))
	}
	return msgs
}

func modeLabel(m models.Mode) string {
	if m == models.ModeDeepWork {
		return "deep work"
	}
	return string(m)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// AccuracyHint condenses the insights for a reschedule prompt.
func (a *Adjuster) AccuracyHint(ctx context.Context, userID uint, now time.Time) (*reschedule.AccuracyHint, error) {
	in, err := a.GetCapacityInsights(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &reschedule.AccuracyHint{Samples: in.Samples, MeanBias: in.MeanBias, Direction: string(in.Direction)}, nil
}
