package patterns

import (
	"math"

	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// Confidence of a prediction, driven by sample size.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Prediction basis values.
const (
	BasisNoData        = "no_data"
	BasisLatest        = "latest"
	BasisWeightedTrend = "weighted_trend"
)

// Prediction is a next-day capacity forecast.
type Prediction struct {
	Sufficient  bool        `json:"sufficient"`
	Reason      string      `json:"reason,omitempty"`
	Score       int         `json:"score"`
	Mode        models.Mode `json:"mode,omitempty"`
	Basis       string      `json:"basis"`
	Confidence  Confidence  `json:"confidence"`
	SampleSize  int         `json:"sample_size"`
	BiasApplied float64     `json:"bias_applied"`
}

// PredictCapacity forecasts tomorrow's capacity score from the newest Window
// check-ins: a recency-weighted mean (weights 1..n) plus half the per-day
// capacity slope, shifted by the learned bias. With a single check-in the
// prediction is that check-in's score and bias is not applied.
func (d *Detector) PredictCapacity(history []models.CheckIn, bias float64) Prediction {
	d = d.withDefaults()
	window := chronological(history, d.Window)

	switch len(window) {
	case 0:
		return Prediction{
			Reason:     "no check-in history",
			Basis:      BasisNoData,
			Confidence: ConfidenceNone,
		}
	case 1:
		score := window[0].CapacityScore
		return Prediction{
			Sufficient: true,
			Reason:     "only one check-in, using the latest score",
			Score:      score,
			Mode:       capacity.ModeFor(score),
			Basis:      BasisLatest,
			Confidence: ConfidenceLow,
			SampleSize: 1,
		}
	}

	scores := series(window, DimCapacity)
	var weighted, weights float64
	for i, s := range scores {
		w := float64(i + 1)
		weighted += s * w
		weights += w
	}
	trend := slope(dayOffsets(window), scores)

	raw := weighted/weights + trend*0.5 + bias
	score := capacity.Clamp(int(math.Round(raw)))

	return Prediction{
		Sufficient:  true,
		Score:       score,
		Mode:        capacity.ModeFor(score),
		Basis:       BasisWeightedTrend,
		Confidence:  confidenceFor(len(window)),
		SampleSize:  len(window),
		BiasApplied: round2(bias),
	}
}

func confidenceFor(n int) Confidence {
	switch {
	case n < 3:
		return ConfidenceLow
	case n < 5:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}
