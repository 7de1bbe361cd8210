package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/database"
	"github.com/jimdaga/capacity-planner/internal/models"
)

var day0 = time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return NewStore(db)
}

func createUser(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	u, err := s.UpsertByEmail(context.Background(), email, "Test", day0)
	if err != nil {
		t.Fatalf("UpsertByEmail: %v", err)
	}
	return u
}

func createPlan(t *testing.T, s *Store, userID uint, day time.Time, tasks ...models.PlanTask) *models.DailyPlan {
	t.Helper()
	plan := &models.DailyPlan{UserID: userID, Date: day, CapacityScore: 60, Mode: models.ModeBalanced, Tasks: tasks}
	if err := s.CreatePlan(context.Background(), plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return plan
}

func newTask(pos int, title string, est int) models.PlanTask {
	return models.PlanTask{Position: pos, Title: title, Priority: models.PriorityMedium, EstimatedMinutes: est}
}

func TestCheckIn_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "round@trip.test")

	score, mode := capacity.Score(8, 7, 3, models.MoodPositive)
	in := &models.CheckIn{UserID: u.ID, Date: day0, EnergyLevel: 8, SleepQuality: 7, StressLevel: 3,
		Mood: models.MoodPositive, CapacityScore: score, Mode: mode, Notes: "slept well"}
	if err := s.UpsertCheckIn(ctx, in); err != nil {
		t.Fatalf("UpsertCheckIn: %v", err)
	}

	got, err := s.GetCheckIn(ctx, u.ID, day0)
	if err != nil {
		t.Fatalf("GetCheckIn: %v", err)
	}
	if got.EnergyLevel != 8 || got.SleepQuality != 7 || got.StressLevel != 3 ||
		got.Mood != models.MoodPositive || got.CapacityScore != 78 || got.Mode != models.ModeDeepWork {
		t.Errorf("round trip = %+v", got)
	}
}

func TestCheckIn_UpsertReplacesSameDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "upsert@test")

	first := &models.CheckIn{UserID: u.ID, Date: day0, EnergyLevel: 3, SleepQuality: 3, StressLevel: 8,
		Mood: models.MoodNegative, CapacityScore: 20, Mode: models.ModeRecovery}
	if err := s.UpsertCheckIn(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.CheckIn{UserID: u.ID, Date: day0, EnergyLevel: 9, SleepQuality: 9, StressLevel: 1,
		Mood: models.MoodPositive, CapacityScore: 95, Mode: models.ModeDeepWork}
	if err := s.UpsertCheckIn(ctx, second); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListCheckIns(ctx, u.ID, day0.AddDate(0, 0, -1), day0.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].CapacityScore != 95 {
		t.Fatalf("check-ins = %+v, want one replaced entry", all)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %d vs %d", second.ID, first.ID)
	}
}

func TestRecentCheckIns_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "recent@test")
	for i := 0; i < 5; i++ {
		c := &models.CheckIn{UserID: u.ID, Date: day0.AddDate(0, 0, i), EnergyLevel: 5, SleepQuality: 5, StressLevel: 5,
			Mood: models.MoodNeutral, CapacityScore: 40 + i, Mode: models.ModeBalanced}
		if err := s.UpsertCheckIn(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.RecentCheckIns(ctx, u.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].CapacityScore != 42 || got[2].CapacityScore != 44 {
		t.Errorf("recent = %+v", got)
	}
}

func TestPlans_LatestPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "plans@test")

	createPlan(t, s, u.ID, day0, newTask(1, "old", 30))
	newer := createPlan(t, s, u.ID, day0, newTask(2, "b", 30), newTask(1, "a", 30))
	createPlan(t, s, u.ID, day0.AddDate(0, 0, 1), newTask(1, "next", 30))

	current, err := s.CurrentPlan(ctx, u.ID, day0)
	if err != nil {
		t.Fatal(err)
	}
	if current.ID != newer.ID {
		t.Errorf("CurrentPlan = %d, want %d", current.ID, newer.ID)
	}
	if len(current.Tasks) != 2 || current.Tasks[0].Title != "a" {
		t.Errorf("tasks not ordered by position: %+v", current.Tasks)
	}

	plans, err := s.ListLatestPlans(ctx, u.ID, day0, day0.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 2 || plans[0].ID != newer.ID {
		t.Errorf("ListLatestPlans = %d plans, first %d", len(plans), plans[0].ID)
	}

	if _, err := s.CurrentPlan(ctx, u.ID, day0.AddDate(0, 0, 5)); apperr.Kind(err) != "not_found" {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestCreatePlan_RejectsForeignGoal(t *testing.T) {
	s := newTestStore(t)
	owner := createUser(t, s, "owner@test")
	other := createUser(t, s, "other@test")

	goal := &models.Goal{UserID: owner.ID, Title: "mine"}
	if err := s.PlanRepository.db.Create(goal).Error; err != nil {
		t.Fatal(err)
	}
	task := newTask(1, "x", 30)
	task.GoalID = &goal.ID
	plan := &models.DailyPlan{UserID: other.ID, Date: day0, Mode: models.ModeBalanced, Tasks: []models.PlanTask{task}}

	if err := s.CreatePlan(context.Background(), plan); apperr.Kind(err) != "not_found" {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestTaskLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "tasks@test")
	ext := "todo-1"
	task := newTask(1, "linked", 30)
	task.ExternalID = &ext
	plan := createPlan(t, s, u.ID, day0, task)

	owner, err := s.TaskOwner(ctx, plan.Tasks[0].ID)
	if err != nil || owner != u.ID {
		t.Errorf("TaskOwner = %d, %v", owner, err)
	}
	found, err := s.FindTaskByExternalID(ctx, u.ID, ext)
	if err != nil || found.ID != plan.Tasks[0].ID {
		t.Errorf("FindTaskByExternalID = %+v, %v", found, err)
	}
	if _, err := s.FindTaskByExternalID(ctx, u.ID+1, ext); apperr.Kind(err) != "not_found" {
		t.Errorf("other user's lookup err = %v, want not_found", err)
	}
}

func TestApplyReschedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "apply@test")
	plan := createPlan(t, s, u.ID, day0, newTask(1, "a", 30), newTask(2, "b", 60))
	a, b := plan.Tasks[0].ID, plan.Tasks[1].ID

	start := day0.Add(14 * time.Hour)
	timings := []models.TaskTiming{{TaskID: a, NewStart: start, NewEnd: start.Add(30 * time.Minute)}}
	event := &models.RescheduleEvent{ProposalID: "p-1", Source: "deterministic", Payload: []byte(`{}`), AppliedAt: start}

	rev, err := s.ApplyReschedule(ctx, plan.ID, timings, []uint{b}, event)
	if err != nil {
		t.Fatalf("ApplyReschedule: %v", err)
	}
	if rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}

	got, err := s.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revision != 1 {
		t.Errorf("stored revision = %d", got.Revision)
	}
	if ta := got.Tasks[0]; ta.ScheduledStart == nil || !ta.ScheduledStart.Equal(start) || ta.Deferred {
		t.Errorf("task a = %+v", ta)
	}
	if tb := got.Tasks[1]; !tb.Deferred || tb.ScheduledStart != nil {
		t.Errorf("task b = %+v", tb)
	}

	events, err := s.RescheduleEvents(ctx, plan.ID)
	if err != nil || len(events) != 1 || events[0].ProposalID != "p-1" {
		t.Errorf("events = %+v, %v", events, err)
	}
}

func TestApplyReschedule_SameProposalTwiceIsConsistencyError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "twice@test")
	plan := createPlan(t, s, u.ID, day0, newTask(1, "a", 30))

	start := day0.Add(14 * time.Hour)
	timings := []models.TaskTiming{{TaskID: plan.Tasks[0].ID, NewStart: start, NewEnd: start.Add(30 * time.Minute)}}
	apply := func() (int, error) {
		ev := &models.RescheduleEvent{ProposalID: "p-same", Source: "deterministic", Payload: []byte(`{}`), AppliedAt: start}
		return s.ApplyReschedule(ctx, plan.ID, timings, nil, ev)
	}

	if _, err := apply(); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := apply(); apperr.Kind(err) != "consistency" {
		t.Fatalf("second apply err = %v, want consistency", err)
	}

	got, err := s.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revision != 1 {
		t.Errorf("revision = %d, want 1", got.Revision)
	}
	if events, _ := s.RescheduleEvents(ctx, plan.ID); len(events) != 1 {
		t.Errorf("recorded %d events, want 1", len(events))
	}
}

func TestApplyReschedule_ConsistencyLeavesPlanUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "conflict@test")
	plan := createPlan(t, s, u.ID, day0, newTask(1, "a", 30), newTask(2, "b", 60))
	a, b := plan.Tasks[0].ID, plan.Tasks[1].ID

	done, err := s.GetTask(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	done.Completed = true
	if err := s.SaveTask(ctx, done); err != nil {
		t.Fatal(err)
	}

	start := day0.Add(14 * time.Hour)
	timings := []models.TaskTiming{
		{TaskID: a, NewStart: start, NewEnd: start.Add(30 * time.Minute)},
		{TaskID: b, NewStart: start.Add(30 * time.Minute), NewEnd: start.Add(90 * time.Minute)},
	}
	_, err = s.ApplyReschedule(ctx, plan.ID, timings, nil, &models.RescheduleEvent{ProposalID: "p-2", Source: "ai", AppliedAt: start})
	if apperr.Kind(err) != "consistency" {
		t.Fatalf("err = %v, want consistency", err)
	}

	got, err := s.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revision != 0 || got.Tasks[0].ScheduledStart != nil {
		t.Errorf("plan changed after failed apply: %+v", got)
	}
	if events, _ := s.RescheduleEvents(ctx, plan.ID); len(events) != 0 {
		t.Errorf("event recorded for failed apply")
	}

	if _, err := s.ApplyReschedule(ctx, plan.ID+100, nil, nil, nil); apperr.Kind(err) != "not_found" {
		t.Errorf("missing plan err = %v, want not_found", err)
	}
}

func TestUserAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "agg@test")

	log := models.MomentumLog{}.Append(models.MomentumEntry{RecordedAt: day0, State: "steady"}, 5)
	if err := s.SaveMomentumLog(ctx, u.ID, log); err != nil {
		t.Fatalf("SaveMomentumLog: %v", err)
	}
	if err := s.SaveCapacityBias(ctx, u.ID, -7.5, 4, day0); err != nil {
		t.Fatalf("SaveCapacityBias: %v", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.MomentumLog) != 1 || got.MomentumLog[0].State != "steady" {
		t.Errorf("MomentumLog = %+v", got.MomentumLog)
	}
	if got.CapacityBias != -7.5 || got.BiasSamples != 4 || got.BiasUpdatedAt == nil {
		t.Errorf("bias = %v/%d/%v", got.CapacityBias, got.BiasSamples, got.BiasUpdatedAt)
	}

	if err := s.SaveCapacityBias(ctx, 999, 1, 1, day0); apperr.Kind(err) != "not_found" {
		t.Errorf("unknown user err = %v, want not_found", err)
	}
}

func TestTrackerConnection_SealsToken(t *testing.T) {
	key := "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes, base64
	if err := models.InitEncryption(key); err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "tracker@test")

	if _, err := s.UpsertTrackerConnection(ctx, u.ID, "todoist", "secret-token"); err != nil {
		t.Fatal(err)
	}
	var raw string
	if err := s.TrackerRepository.db.Raw("SELECT access_token FROM tracker_connections WHERE user_id = ?", u.ID).Scan(&raw).Error; err != nil {
		t.Fatal(err)
	}
	if raw == "" || raw == "secret-token" {
		t.Errorf("token stored as %q", raw)
	}

	conn, err := s.GetTrackerConnection(ctx, u.ID, "todoist")
	if err != nil || conn.AccessToken != "secret-token" {
		t.Errorf("conn = %+v, %v", conn, err)
	}
	if err := s.TouchTrackerConnection(ctx, u.ID, "todoist", day0); err != nil {
		t.Fatal(err)
	}
	conn, _ = s.GetTrackerConnection(ctx, u.ID, "todoist")
	if conn.LastSyncedAt == nil || !conn.LastSyncedAt.Equal(day0) {
		t.Errorf("LastSyncedAt = %v", conn.LastSyncedAt)
	}
}
