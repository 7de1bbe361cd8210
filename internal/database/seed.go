package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// DevUserEmail identifies the seeded development user.
const DevUserEmail = "dev@capacity.local"

type seedCheckIn struct {
	daysAgo               int
	energy, sleep, stress int
	mood                  models.Mood
	planned, completed    int
}

// SeedDevData populates the database with a development user, a week of
// check-ins with matching plans, and a plan for today.
// Idempotent: skips if the user already exists.
func SeedDevData(db *gorm.DB, now time.Time) error {
	var existing models.User
	if err := db.Where("email = ?", DevUserEmail).First(&existing).Error; err == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	user := models.User{Email: DevUserEmail, Name: "Dev User", Timezone: "America/Chicago"}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	goal := models.Goal{UserID: user.ID, Title: "Ship the quarterly report"}
	if err := db.Create(&goal).Error; err != nil {
		return fmt.Errorf("failed to create seed goal: %w", err)
	}

	loc := user.Location()
	today := models.DayKey(now, loc)

	history := []seedCheckIn{
		{7, 6, 7, 4, models.MoodNeutral, 4, 3},
		{6, 7, 7, 3, models.MoodPositive, 5, 5},
		{5, 5, 4, 6, models.MoodNeutral, 4, 2},
		{4, 4, 4, 7, models.MoodNegative, 3, 1},
		{3, 6, 6, 5, models.MoodNeutral, 4, 3},
		{2, 8, 7, 3, models.MoodPositive, 5, 4},
		{1, 7, 8, 3, models.MoodPositive, 5, 5},
	}
	for _, h := range history {
		day := today.AddDate(0, 0, -h.daysAgo)
		if err := seedDay(db, user.ID, day, loc, h); err != nil {
			return err
		}
	}

	score, mode := capacity.Score(7, 6, 4, models.MoodPositive)
	checkIn := models.CheckIn{UserID: user.ID, Date: today, EnergyLevel: 7, SleepQuality: 6, StressLevel: 4,
		Mood: models.MoodPositive, CapacityScore: score, Mode: mode}
	if err := db.Create(&checkIn).Error; err != nil {
		return fmt.Errorf("failed to create seed check-in: %w", err)
	}

	start, _ := models.DayBounds(today, loc)
	cursor := start.Add(9 * time.Hour)
	plan := models.DailyPlan{UserID: user.ID, Date: today, CapacityScore: score, Mode: mode,
		Reasoning: "Seeded plan for local development."}
	for i, tpl := range []struct {
		title    string
		priority models.Priority
		minutes  int
	}{
		{"Review pull requests", models.PriorityMedium, 45},
		{"Draft report outline", models.PriorityHigh, 90},
		{"Team sync", models.PriorityHigh, 30},
		{"Inbox zero", models.PriorityLow, 30},
		{"Plan tomorrow", models.PriorityMedium, 15},
	} {
		s, e := cursor, cursor.Add(time.Duration(tpl.minutes)*time.Minute)
		t := models.PlanTask{Position: i + 1, Title: tpl.title, Priority: tpl.priority,
			EstimatedMinutes: tpl.minutes, ScheduledStart: &s, ScheduledEnd: &e}
		if i == 1 {
			t.GoalID = &goal.ID
		}
		plan.Tasks = append(plan.Tasks, t)
		cursor = e
	}
	if err := db.Create(&plan).Error; err != nil {
		return fmt.Errorf("failed to create seed plan: %w", err)
	}

	slog.Info("Seed data created", "user_id", user.ID, "email", user.Email, "plan_id", plan.ID)
	return nil
}

func seedDay(db *gorm.DB, userID uint, day time.Time, loc *time.Location, h seedCheckIn) error {
	score, mode := capacity.Score(h.energy, h.sleep, h.stress, h.mood)
	checkIn := models.CheckIn{UserID: userID, Date: day, EnergyLevel: h.energy, SleepQuality: h.sleep,
		StressLevel: h.stress, Mood: h.mood, CapacityScore: score, Mode: mode}
	if err := db.Create(&checkIn).Error; err != nil {
		return fmt.Errorf("failed to create seed check-in: %w", err)
	}

	start, _ := models.DayBounds(day, loc)
	cursor := start.Add(9 * time.Hour)
	plan := models.DailyPlan{UserID: userID, Date: day, CapacityScore: score, Mode: mode}
	for i := 0; i < h.planned; i++ {
		s, e := cursor, cursor.Add(45*time.Minute)
		t := models.PlanTask{Position: i + 1, Title: fmt.Sprintf("Task %d", i+1), Priority: models.PriorityMedium,
			EstimatedMinutes: 45, ScheduledStart: &s, ScheduledEnd: &e}
		if i < h.completed {
			started, done := s, e
			actual := 45
			t.StartedAt, t.CompletedAt, t.ActualMinutes, t.Completed = &started, &done, &actual, true
		}
		plan.Tasks = append(plan.Tasks, t)
		cursor = e
	}
	if err := db.Create(&plan).Error; err != nil {
		return fmt.Errorf("failed to create seed plan: %w", err)
	}
	return nil
}
