package patterns

import (
	"testing"
	"time"

	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// Monday.
var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func checkIn(day, energy, sleep, stress int, mood models.Mood) models.CheckIn {
	score, mode := capacity.Score(energy, sleep, stress, mood)
	return models.CheckIn{
		Date:          day0.AddDate(0, 0, day),
		EnergyLevel:   energy,
		SleepQuality:  sleep,
		StressLevel:   stress,
		Mood:          mood,
		CapacityScore: score,
		Mode:          mode,
	}
}

func withScore(day, score int) models.CheckIn {
	return models.CheckIn{
		Date:          day0.AddDate(0, 0, day),
		EnergyLevel:   5,
		SleepQuality:  5,
		StressLevel:   5,
		Mood:          models.MoodNeutral,
		CapacityScore: score,
		Mode:          capacity.ModeFor(score),
	}
}

func trendFor(t *testing.T, p Patterns, dim string) Trend {
	t.Helper()
	for _, tr := range p.Trends {
		if tr.Dimension == dim {
			return tr
		}
	}
	t.Fatalf("no trend for %s", dim)
	return Trend{}
}

// ─── Empty / single history ────────────────────────────────────────────────

func TestEmptyHistory_AllInsufficient(t *testing.T) {
	d := NewDetector()

	p := d.DetectPatterns(nil)
	if p.Sufficient {
		t.Error("DetectPatterns(nil).Sufficient = true")
	}
	for _, tr := range p.Trends {
		if tr.Direction != InsufficientData {
			t.Errorf("%s direction = %s, want insufficient_data", tr.Dimension, tr.Direction)
		}
	}

	pred := d.PredictCapacity(nil, 0)
	if pred.Sufficient || pred.Basis != BasisNoData || pred.Confidence != ConfidenceNone {
		t.Errorf("PredictCapacity(nil) = %+v", pred)
	}

	fa := d.AnalyzeFactors(nil)
	if fa.Sufficient || fa.Reason == "" {
		t.Errorf("AnalyzeFactors(nil) = %+v", fa)
	}
}

func TestSingleEntry_PredictionIsThatScore(t *testing.T) {
	d := NewDetector()
	only := checkIn(0, 8, 7, 3, models.MoodPositive)

	pred := d.PredictCapacity([]models.CheckIn{only}, 12)
	if pred.Score != 78 {
		t.Errorf("Score = %d, want 78", pred.Score)
	}
	if pred.Basis != BasisLatest {
		t.Errorf("Basis = %s, want latest", pred.Basis)
	}
	if pred.BiasApplied != 0 {
		t.Errorf("BiasApplied = %v, want 0 for a single check-in", pred.BiasApplied)
	}

	p := d.DetectPatterns([]models.CheckIn{only})
	if p.Sufficient {
		t.Error("single entry should not be sufficient for trends")
	}
	if tr := trendFor(t, p, DimEnergy); tr.Direction != InsufficientData || tr.Last != 8 {
		t.Errorf("energy trend = %+v", tr)
	}
}

// ─── Trends ────────────────────────────────────────────────────────────────

func TestDetectPatterns_RisingAndFalling(t *testing.T) {
	var history []models.CheckIn
	for i := 0; i < 5; i++ {
		history = append(history, checkIn(i, 3+i, 6, 8-i, models.MoodNeutral))
	}

	p := NewDetector().DetectPatterns(history)
	if !p.Sufficient {
		t.Fatalf("not sufficient: %s", p.Reason)
	}
	if got := trendFor(t, p, DimEnergy).Direction; got != Rising {
		t.Errorf("energy = %s, want rising", got)
	}
	if got := trendFor(t, p, DimStress).Direction; got != Falling {
		t.Errorf("stress = %s, want falling", got)
	}
	if got := trendFor(t, p, DimSleep).Direction; got != Flat {
		t.Errorf("sleep = %s, want flat", got)
	}
	if got := trendFor(t, p, DimCapacity).Direction; got != Rising {
		t.Errorf("capacity = %s, want rising", got)
	}
	if len(p.Highlights) == 0 {
		t.Error("expected highlights for non-flat trends")
	}
}

func TestDetectPatterns_NormalizesOrder(t *testing.T) {
	var asc []models.CheckIn
	for i := 0; i < 4; i++ {
		asc = append(asc, checkIn(i, 2+2*i, 5, 5, models.MoodNeutral))
	}
	desc := []models.CheckIn{asc[3], asc[2], asc[1], asc[0]}

	d := NewDetector()
	a := trendFor(t, d.DetectPatterns(asc), DimEnergy)
	b := trendFor(t, d.DetectPatterns(desc), DimEnergy)
	if a != b {
		t.Errorf("order changed the result: %+v vs %+v", a, b)
	}
	if a.Direction != Rising || a.First != 2 || a.Last != 8 {
		t.Errorf("energy trend = %+v", a)
	}
}

func TestDetectPatterns_UsesOnlyWindow(t *testing.T) {
	var history []models.CheckIn
	// Two old days of very low energy, then a flat week.
	history = append(history, checkIn(0, 1, 5, 5, models.MoodNeutral), checkIn(1, 1, 5, 5, models.MoodNeutral))
	for i := 2; i < 9; i++ {
		history = append(history, checkIn(i, 7, 5, 5, models.MoodNeutral))
	}
	p := NewDetector().DetectPatterns(history)
	if p.Days != 7 {
		t.Errorf("Days = %d, want 7", p.Days)
	}
	if got := trendFor(t, p, DimEnergy).Direction; got != Flat {
		t.Errorf("energy = %s, want flat inside the window", got)
	}
}

func TestDetectPatterns_WeekdayRegularity(t *testing.T) {
	var history []models.CheckIn
	for i := 0; i < 21; i++ {
		score := 70
		if day0.AddDate(0, 0, i).Weekday() == time.Monday {
			score = 30
		}
		history = append(history, withScore(i, score))
	}

	p := NewDetector().DetectPatterns(history)
	if len(p.Weekdays) != 1 {
		t.Fatalf("Weekdays = %+v, want exactly Monday", p.Weekdays)
	}
	w := p.Weekdays[0]
	if w.Weekday != time.Monday || w.Samples != 3 || w.Deviation >= 0 {
		t.Errorf("weekday pattern = %+v", w)
	}
}

func TestDetectPatterns_RecoveryStreakAndMood(t *testing.T) {
	history := []models.CheckIn{
		checkIn(0, 8, 8, 2, models.MoodPositive),
		checkIn(1, 2, 2, 9, models.MoodNegative),
		checkIn(2, 2, 3, 9, models.MoodNegative),
		checkIn(3, 1, 2, 10, models.MoodNegative),
	}
	p := NewDetector().DetectPatterns(history)
	if p.RecoveryStreak != 3 {
		t.Errorf("RecoveryStreak = %d, want 3", p.RecoveryStreak)
	}
	if !p.NegativeMoodDominant {
		t.Error("NegativeMoodDominant = false, want true")
	}
}

func TestDetectPatterns_DuplicateDayKeepsLatest(t *testing.T) {
	early := checkIn(0, 2, 5, 5, models.MoodNeutral)
	early.UpdatedAt = day0.Add(8 * time.Hour)
	corrected := checkIn(0, 9, 5, 5, models.MoodNeutral)
	corrected.UpdatedAt = day0.Add(9 * time.Hour)

	p := NewDetector().DetectPatterns([]models.CheckIn{corrected, early, checkIn(1, 9, 5, 5, models.MoodNeutral)})
	if p.Days != 2 {
		t.Fatalf("Days = %d, want 2", p.Days)
	}
	if tr := trendFor(t, p, DimEnergy); tr.First != 9 {
		t.Errorf("first energy = %v, want the corrected 9", tr.First)
	}
}

// ─── Prediction ────────────────────────────────────────────────────────────

func TestPredictCapacity_FlatHistory(t *testing.T) {
	var history []models.CheckIn
	for i := 0; i < 6; i++ {
		history = append(history, withScore(i, 60))
	}
	pred := NewDetector().PredictCapacity(history, 0)
	if pred.Score != 60 {
		t.Errorf("Score = %d, want 60", pred.Score)
	}
	if pred.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %s, want high", pred.Confidence)
	}
	if pred.Mode != models.ModeBalanced {
		t.Errorf("Mode = %s, want balanced", pred.Mode)
	}
}

func TestPredictCapacity_WeightsRecentDays(t *testing.T) {
	history := []models.CheckIn{withScore(0, 40), withScore(1, 80)}
	// weighted mean (40*1 + 80*2)/3 = 66.67, slope 40/day * 0.5 = 20.
	pred := NewDetector().PredictCapacity(history, 0)
	if pred.Score != 87 {
		t.Errorf("Score = %d, want 87", pred.Score)
	}
	if pred.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %s, want low", pred.Confidence)
	}
}

func TestPredictCapacity_AppliesBiasAndClamps(t *testing.T) {
	history := []models.CheckIn{withScore(0, 50), withScore(1, 50), withScore(2, 50)}
	d := NewDetector()

	if got := d.PredictCapacity(history, -10).Score; got != 40 {
		t.Errorf("with bias -10 score = %d, want 40", got)
	}
	high := []models.CheckIn{withScore(0, 95), withScore(1, 98), withScore(2, 100)}
	if got := d.PredictCapacity(high, 15).Score; got != 100 {
		t.Errorf("clamped score = %d, want 100", got)
	}
}

// ─── Factors ───────────────────────────────────────────────────────────────

func TestAnalyzeFactors_FindsDrivingDimension(t *testing.T) {
	history := []models.CheckIn{
		checkIn(0, 2, 6, 5, models.MoodNeutral),
		checkIn(1, 5, 6, 5, models.MoodNeutral),
		checkIn(2, 9, 6, 5, models.MoodNeutral),
		checkIn(3, 4, 6, 5, models.MoodNeutral),
		checkIn(4, 7, 6, 5, models.MoodNeutral),
	}
	fa := NewDetector().AnalyzeFactors(history)
	if !fa.Sufficient {
		t.Fatalf("not sufficient: %s", fa.Reason)
	}
	if fa.Primary != DimEnergy {
		t.Errorf("Primary = %s, want energy", fa.Primary)
	}
	if fa.Factors[0].Correlation < 0.99 {
		t.Errorf("energy correlation = %v, want ~1", fa.Factors[0].Correlation)
	}
	for _, f := range fa.Factors[1:] {
		if !f.Constant {
			t.Errorf("%s should be constant", f.Dimension)
		}
	}
}

func TestAnalyzeFactors_StressIsNegative(t *testing.T) {
	history := []models.CheckIn{
		checkIn(0, 5, 5, 2, models.MoodNeutral),
		checkIn(1, 5, 5, 8, models.MoodNeutral),
		checkIn(2, 5, 5, 5, models.MoodNeutral),
	}
	fa := NewDetector().AnalyzeFactors(history)
	if fa.Primary != DimStress {
		t.Fatalf("Primary = %s, want stress", fa.Primary)
	}
	if fa.Factors[0].Correlation >= 0 {
		t.Errorf("stress correlation = %v, want negative", fa.Factors[0].Correlation)
	}
	if fa.Factors[0].Influence != "strong negative" {
		t.Errorf("Influence = %q", fa.Factors[0].Influence)
	}
}

func TestAnalyzeFactors_TooFewSamples(t *testing.T) {
	fa := NewDetector().AnalyzeFactors([]models.CheckIn{withScore(0, 50), withScore(1, 60)})
	if fa.Sufficient || len(fa.Factors) != 0 {
		t.Errorf("AnalyzeFactors(2 entries) = %+v", fa)
	}
}

func TestAnalyzeFactors_NothingVaries(t *testing.T) {
	history := []models.CheckIn{withScore(0, 48), withScore(1, 48), withScore(2, 48)}
	fa := NewDetector().AnalyzeFactors(history)
	if fa.Sufficient || fa.Primary != "" {
		t.Errorf("constant history = %+v", fa)
	}
}
