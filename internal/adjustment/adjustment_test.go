package adjustment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
)

var now = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

func dayAgo(n int) time.Time { return models.DayKey(now, time.UTC).AddDate(0, 0, -n) }

type fakeStore struct {
	user     *models.User
	checkIns []models.CheckIn
	plans    []models.DailyPlan

	savedBias    float64
	savedSamples int
	saves        int
}

func newFakeStore() *fakeStore {
	u := &models.User{Timezone: "UTC", CapacityBias: -4}
	u.ID = 1
	return &fakeStore{user: u}
}

func (s *fakeStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	if id != s.user.ID {
		return nil, apperr.NotFound("user", id)
	}
	return s.user, nil
}

func (s *fakeStore) ListCheckIns(_ context.Context, _ uint, from, to time.Time) ([]models.CheckIn, error) {
	var out []models.CheckIn
	for _, c := range s.checkIns {
		if !c.Date.Before(from) && !c.Date.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListLatestPlans(_ context.Context, _ uint, from, to time.Time) ([]models.DailyPlan, error) {
	var out []models.DailyPlan
	for _, p := range s.plans {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveCapacityBias(_ context.Context, _ uint, bias float64, samples int, _ time.Time) error {
	s.savedBias, s.savedSamples = bias, samples
	s.saves++
	return nil
}

// addDay records a check-in with score and a plan of total tasks, done of
// them completed.
func (s *fakeStore) addDay(daysAgo, score, total, done int) {
	date := dayAgo(daysAgo)
	mode := models.ModeBalanced
	if score >= 70 {
		mode = models.ModeDeepWork
	}
	s.checkIns = append(s.checkIns, models.CheckIn{UserID: 1, Date: date, CapacityScore: score, Mode: mode})

	plan := models.DailyPlan{UserID: 1, Date: date}
	for i := 0; i < total; i++ {
		t := models.PlanTask{ID: uint(daysAgo*100 + i), EstimatedMinutes: 30}
		if i < done {
			completedAt := date.Add(10 * time.Hour)
			t.Completed = true
			t.CompletedAt = &completedAt
		}
		plan.Tasks = append(plan.Tasks, t)
	}
	s.plans = append(s.plans, plan)
}

func TestAdjustCapacityScore_LowersOverestimates(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 5; d++ {
		store.addDay(d, 80, 4, 2)
	}
	a := NewAdjuster(store, Settings{})

	adj, err := a.AdjustCapacityScore(context.Background(), 1, 70, now)
	if err != nil {
		t.Fatal(err)
	}
	if adj.Samples != 5 || adj.Bias != -15 || adj.Delta != -15 || adj.AdjustedScore != 55 {
		t.Errorf("adjustment = %+v, want 5 samples bias -15 adjusted 55", adj)
	}
	if store.savedBias != -15 || store.savedSamples != 5 {
		t.Errorf("saved bias=%v samples=%d", store.savedBias, store.savedSamples)
	}
	if !strings.Contains(adj.Reason, "lowering by 15") {
		t.Errorf("Reason = %q", adj.Reason)
	}
}

func TestAdjustCapacityScore_ClampsBias(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 4; d++ {
		store.addDay(d, 30, 3, 3)
	}
	a := NewAdjuster(store, Settings{})

	adj, err := a.AdjustCapacityScore(context.Background(), 1, 95, now)
	if err != nil {
		t.Fatal(err)
	}
	if adj.Bias != 15 || adj.AdjustedScore != 100 {
		t.Errorf("adjustment = %+v, want bias clamped to 15 and score clamped to 100", adj)
	}
}

func TestAdjustCapacityScore_NeedsEnoughSamples(t *testing.T) {
	store := newFakeStore()
	store.addDay(1, 80, 4, 0)
	store.addDay(2, 80, 4, 0)
	a := NewAdjuster(store, Settings{})

	adj, err := a.AdjustCapacityScore(context.Background(), 1, 70, now)
	if err != nil {
		t.Fatal(err)
	}
	if adj.Delta != 0 || adj.AdjustedScore != 70 || adj.Samples != 2 {
		t.Errorf("adjustment = %+v, want no correction", adj)
	}
	if store.saves != 1 || store.savedBias != 0 {
		t.Errorf("saved bias=%v saves=%d, want 0 saved once", store.savedBias, store.saves)
	}
}

func TestSamples_FiltersDays(t *testing.T) {
	store := newFakeStore()
	store.addDay(0, 50, 2, 2)  // today
	store.addDay(1, 50, 2, 1)  // counted
	store.addDay(15, 50, 2, 1) // outside the window
	store.checkIns = append(store.checkIns, models.CheckIn{UserID: 1, Date: dayAgo(2), CapacityScore: 40})
	store.checkIns = append(store.checkIns, models.CheckIn{UserID: 1, Date: dayAgo(3), CapacityScore: 40})
	store.plans = append(store.plans, models.DailyPlan{UserID: 1, Date: dayAgo(3)})

	samples, err := NewAdjuster(store, Settings{}).Samples(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || !samples[0].Date.Equal(dayAgo(1)) {
		t.Fatalf("samples = %+v, want only yesterday", samples)
	}
	if samples[0].Error != 0 {
		t.Errorf("Error = %v, want 0", samples[0].Error)
	}
}

func TestAdjustCapacityScore_RejectsOutOfRange(t *testing.T) {
	a := NewAdjuster(newFakeStore(), Settings{})
	for _, score := range []int{-1, 101} {
		if _, err := a.AdjustCapacityScore(context.Background(), 1, score, now); apperr.Kind(err) != "validation" {
			t.Errorf("score %d: err = %v, want validation", score, err)
		}
	}
}

func TestAdjustCapacityScore_UnknownUser(t *testing.T) {
	a := NewAdjuster(newFakeStore(), Settings{})
	if _, err := a.AdjustCapacityScore(context.Background(), 9, 50, now); apperr.Kind(err) != "not_found" {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestAdjustCapacityScore_NeverTouchesCheckIns(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 3; d++ {
		store.addDay(d, 80, 4, 1)
	}
	before := make([]models.CheckIn, len(store.checkIns))
	copy(before, store.checkIns)

	if _, err := NewAdjuster(store, Settings{}).AdjustCapacityScore(context.Background(), 1, 80, now); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if store.checkIns[i] != before[i] {
			t.Errorf("check-in %d changed", i)
		}
	}
}

func TestGetCapacityInsights(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 3; d++ {
		store.addDay(d, 80, 4, 2)
	}
	store.addDay(4, 50, 2, 1)
	store.addDay(5, 50, 2, 1)

	in, err := NewAdjuster(store, Settings{}).GetCapacityInsights(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if in.Samples != 5 {
		t.Fatalf("Samples = %d, want 5", in.Samples)
	}
	if in.MeanBias != -18 || in.MeanAbsError != 18 || in.Direction != Overestimates {
		t.Errorf("insights = %+v, want mean -18 overestimates", in)
	}
	deep := in.PerMode[models.ModeDeepWork]
	if deep.Samples != 3 || deep.MeanCompletionRate != 50 || deep.MeanError != -30 {
		t.Errorf("deep work accuracy = %+v", deep)
	}
	if bal := in.PerMode[models.ModeBalanced]; bal.Samples != 2 || bal.MeanError != 0 {
		t.Errorf("balanced accuracy = %+v", bal)
	}
	if in.CurrentBias != -4 {
		t.Errorf("CurrentBias = %v, want stored bias", in.CurrentBias)
	}
	if len(in.Messages) != 3 {
		t.Errorf("Messages = %v, want direction plus two modes", in.Messages)
	}
}

func TestGetCapacityInsights_Calibrated(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 3; d++ {
		store.addDay(d, 70, 4, 3)
	}
	in, err := NewAdjuster(store, Settings{}).GetCapacityInsights(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if in.Direction != Calibrated {
		t.Errorf("Direction = %s, want calibrated", in.Direction)
	}
}

func TestGetCapacityInsights_InsufficientData(t *testing.T) {
	in, err := NewAdjuster(newFakeStore(), Settings{}).GetCapacityInsights(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if in.Direction != InsufficientData || len(in.Messages) != 1 {
		t.Errorf("insights = %+v", in)
	}
}

func TestAccuracyHint(t *testing.T) {
	store := newFakeStore()
	for d := 1; d <= 3; d++ {
		store.addDay(d, 80, 4, 2)
	}
	hint, err := NewAdjuster(store, Settings{}).AccuracyHint(context.Background(), 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if hint.Samples != 3 || hint.Direction != "overestimates" || hint.MeanBias != -30 {
		t.Errorf("hint = %+v", hint)
	}
}
