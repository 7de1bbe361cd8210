package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/capacity-planner/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Parse timezone from config
	location, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.SchedulerTimezone, "error", err)
		location = time.UTC
	}

	// Create logger for scheduler
	logger := NewLogger(nil, cfg.LogLevel, cfg.LogFormat, "scheduler")

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entries := []struct {
		spec     string
		taskType string
	}{
		{cfg.SweepSchedule, TaskSweepPlans},
		{cfg.AdjustSchedule, TaskSweepCapacity},
	}
	for _, e := range entries {
		entryID, err := scheduler.Register(e.spec, newSweepTask(e.taskType))
		if err != nil {
			return nil, fmt.Errorf("failed to register %s schedule: %w", e.taskType, err)
		}
		slog.Info("Periodic task registered", "task_type", e.taskType, "schedule", e.spec, "entry_id", entryID)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started", "timezone", location.String())

	// Return shutdown function
	return func() { scheduler.Shutdown() }, nil
}
