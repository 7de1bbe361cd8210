package patterns

import (
	"math"
	"sort"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// MinFactorSamples is the fewest check-ins AnalyzeFactors will correlate.
const MinFactorSamples = 3

// Factor is one dimension's correlation with the capacity score.
type Factor struct {
	Dimension   string  `json:"dimension"`
	Correlation float64 `json:"correlation"`
	Constant    bool    `json:"constant"` // dimension did not vary, correlation undefined
	Influence   string  `json:"influence"`
}

// FactorAnalysis ranks dimensions by how strongly they track capacity.
type FactorAnalysis struct {
	Sufficient bool     `json:"sufficient"`
	Reason     string   `json:"reason,omitempty"`
	SampleSize int      `json:"sample_size"`
	Factors    []Factor `json:"factors"`
	Primary    string   `json:"primary,omitempty"`
}

var factorDimensions = []string{DimEnergy, DimSleep, DimStress, DimMood}

// AnalyzeFactors computes the Pearson correlation of energy, sleep, stress and
// mood against the capacity score over the newest Window check-ins.
func (d *Detector) AnalyzeFactors(history []models.CheckIn) FactorAnalysis {
	d = d.withDefaults()
	window := chronological(history, d.Window)

	fa := FactorAnalysis{SampleSize: len(window)}
	if len(window) < MinFactorSamples {
		fa.Reason = "insufficient data: at least 3 check-ins are needed for factor analysis"
		if len(window) == 0 {
			fa.Reason = "no check-in history"
		}
		return fa
	}

	scores := series(window, DimCapacity)
	for _, dim := range factorDimensions {
		r, ok := pearson(series(window, dim), scores)
		f := Factor{Dimension: dim, Correlation: round2(r), Constant: !ok}
		f.Influence = influence(r, ok)
		fa.Factors = append(fa.Factors, f)
	}

	sort.SliceStable(fa.Factors, func(i, j int) bool {
		return math.Abs(fa.Factors[i].Correlation) > math.Abs(fa.Factors[j].Correlation)
	})

	if top := fa.Factors[0]; !top.Constant && top.Correlation != 0 {
		fa.Primary = top.Dimension
		fa.Sufficient = true
	} else {
		fa.Reason = "no dimension varied enough to explain capacity changes"
	}
	return fa
}

func influence(r float64, defined bool) string {
	if !defined {
		return "none"
	}
	a := math.Abs(r)
	strength := "weak"
	switch {
	case a >= 0.7:
		strength = "strong"
	case a >= 0.4:
		strength = "moderate"
	}
	if r < 0 {
		return strength + " negative"
	}
	return strength + " positive"
}
