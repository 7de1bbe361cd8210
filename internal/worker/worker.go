package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/config"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
	"github.com/jimdaga/capacity-planner/internal/progress"
	"github.com/jimdaga/capacity-planner/internal/proposals"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/streams"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Store is the persistence the task handlers read.
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetPlan(ctx context.Context, planID uint) (*models.DailyPlan, error)
	CurrentPlan(ctx context.Context, userID uint, day time.Time) (*models.DailyPlan, error)
}

// Analyzer runs the reschedule decision for one plan.
type Analyzer interface {
	AnalyzeProgress(ctx context.Context, planID uint) (*reschedule.Analysis, error)
	RescheduleWithAI(ctx context.Context, planID uint, opts reschedule.Options) (*reschedule.Result, error)
}

// MomentumRecorder appends the user's momentum to their log.
type MomentumRecorder interface {
	CalculateMomentumState(ctx context.Context, userID uint, now time.Time) (momentum.Metrics, error)
}

// BiasRecomputer refreshes a user's capacity bias.
type BiasRecomputer interface {
	RecomputeBias(ctx context.Context, userID uint, now time.Time) (float64, int, error)
}

// EventPublisher publishes planner facts.
type EventPublisher interface {
	Publish(ctx context.Context, ev streams.PlannerEvent) (string, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handlers holds the collaborators of the task handlers. Publisher may be
// nil, in which case no events are published.
type Handlers struct {
	Store     Store
	Engine    Analyzer
	Momentum  MomentumRecorder
	Adjuster  BiasRecomputer
	Proposals proposals.Store
	Publisher EventPublisher
	Enqueuer  Enqueuer
	Cache     StateCache
	Logger    *slog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Register adds every task handler to mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSweepPlans, h.handleSweepPlans)
	mux.HandleFunc(TaskCheckPlan, h.handleCheckPlan)
	mux.HandleFunc(TaskSweepCapacity, h.handleSweepCapacity)
	mux.HandleFunc(TaskAdjustCapacity, h.handleAdjustCapacity)
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, h *Handlers) error {
	srv, mux, err := newServer(cfg, h)
	if err != nil {
		return err
	}

	// Note: Scheduler is started separately in main.go worker mode
	// and deferred there for shutdown coordination.
	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, h *Handlers) (stop func(), err error) {
	srv, mux, err := newServer(cfg, h)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, h *Handlers) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := h.Logger
	if logger == nil {
		logger = NewLogger(nil, cfg.LogLevel, cfg.LogFormat, "worker")
		h.Logger = logger
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	h.Register(mux)

	logger.Info("Worker starting", "concurrency", 5)
	return srv, mux, nil
}

// skipIfMissing stops retries for records that no longer exist.
func skipIfMissing(err error) error {
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// handleSweepPlans enqueues a plan:check for every user's current plan.
func (h *Handlers) handleSweepPlans(ctx context.Context, _ *asynq.Task) error {
	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	now := h.now()
	queued := 0
	for _, u := range users {
		plan, err := h.Store.CurrentPlan(ctx, u.ID, models.DayKey(now, u.Location()))
		if err != nil {
			var nf *apperr.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return fmt.Errorf("failed to load plan for user %d: %w", u.ID, err)
		}
		if err := enqueue(ctx, h.Enqueuer, func() (*asynq.Task, error) { return NewCheckPlanTask(plan.ID) }); err != nil {
			return fmt.Errorf("failed to enqueue plan check: %w", err)
		}
		queued++
	}

	h.logger().Info("Plan sweep completed", "users", len(users), "queued", queued)
	return nil
}

// handleCheckPlan analyzes one plan, publishes status transitions and, when
// the plan needs intervention, a reschedule suggestion. Nothing is applied.
func (h *Handlers) handleCheckPlan(ctx context.Context, task *asynq.Task) error {
	var payload planPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.PlanID == 0 {
		// Invalid payload - don't retry
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}

	plan, err := h.Store.GetPlan(ctx, payload.PlanID)
	if err != nil {
		return skipIfMissing(err)
	}
	analysis, err := h.Engine.AnalyzeProgress(ctx, plan.ID)
	if err != nil {
		return skipIfMissing(err)
	}

	status := string(analysis.Snapshot.Status)
	prev, err := h.Cache.Swap(ctx, fmt.Sprintf("plan:%d:status", plan.ID), status)
	if err != nil {
		return err
	}

	base := streams.PlannerEvent{UserID: plan.UserID, PlanID: plan.ID, OccurredAt: h.now().UTC(), Status: status}
	if prev != "" && prev != status {
		ev := base
		ev.Type, ev.PreviousStatus = streams.EventStatusChanged, prev
		h.publish(ctx, ev)
	}
	if status == string(progress.StatusAtRisk) && prev != status {
		ev := base
		ev.Type, ev.Reason = streams.EventAtRisk, analysis.Reason
		h.publish(ctx, ev)
	}

	if !analysis.NeedsReschedule {
		return nil
	}

	// One suggestion per plan and reschedule type. The claim is released
	// when no proposal gets stored so a retry can suggest again.
	suggestedKey := fmt.Sprintf("plan:%d:suggested", plan.ID)
	last, err := h.Cache.Swap(ctx, suggestedKey, string(analysis.Type))
	if err != nil {
		return err
	}
	if last == string(analysis.Type) {
		return nil
	}

	result, err := h.Engine.RescheduleWithAI(ctx, plan.ID, reschedule.Options{IncludeAccuracy: true})
	if err != nil {
		h.releaseSuggestion(ctx, suggestedKey, last)
		return skipIfMissing(err)
	}
	if err := h.Proposals.Put(ctx, result); err != nil {
		h.releaseSuggestion(ctx, suggestedKey, last)
		return fmt.Errorf("failed to store proposal: %w", err)
	}

	ev := base
	ev.Type = streams.EventRescheduleSuggested
	ev.RescheduleType = string(analysis.Type)
	ev.Reason = analysis.Reason
	ev.ProposalID = result.ProposalID
	ev.Source = string(result.Source)
	h.publish(ctx, ev)

	h.logger().Info("Reschedule suggested",
		"plan_id", plan.ID,
		"type", analysis.Type,
		"source", result.Source,
		"deferred", len(result.DeferredTaskIDs),
	)
	return nil
}

func (h *Handlers) releaseSuggestion(ctx context.Context, key, prev string) {
	if _, err := h.Cache.Swap(ctx, key, prev); err != nil {
		h.logger().Error("Failed to release suggestion claim", "key", key, "error", err)
	}
}

// handleSweepCapacity enqueues a capacity:adjust for every user.
func (h *Handlers) handleSweepCapacity(ctx context.Context, _ *asynq.Task) error {
	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		id := u.ID
		if err := enqueue(ctx, h.Enqueuer, func() (*asynq.Task, error) { return NewAdjustCapacityTask(id) }); err != nil {
			return fmt.Errorf("failed to enqueue capacity adjustment: %w", err)
		}
	}
	h.logger().Info("Capacity sweep completed", "users", len(users))
	return nil
}

// handleAdjustCapacity refreshes one user's bias and records the day's
// momentum in their log.
func (h *Handlers) handleAdjustCapacity(ctx context.Context, task *asynq.Task) error {
	var payload userPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.UserID == 0 {
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}

	now := h.now()
	bias, samples, err := h.Adjuster.RecomputeBias(ctx, payload.UserID, now)
	if err != nil {
		return skipIfMissing(err)
	}
	m, err := h.Momentum.CalculateMomentumState(ctx, payload.UserID, now)
	if err != nil {
		return skipIfMissing(err)
	}

	h.logger().Info("Capacity adjusted",
		"user_id", payload.UserID,
		"bias", bias,
		"samples", samples,
		"momentum", m.State,
	)
	return nil
}

// publish sends ev when a publisher is configured. Failures are logged; the
// planner state has already been computed and a retry would not change it.
func (h *Handlers) publish(ctx context.Context, ev streams.PlannerEvent) {
	if h.Publisher == nil {
		h.logger().Debug("Streams publisher not configured, dropping event", "type", ev.Type, "plan_id", ev.PlanID)
		return
	}
	if _, err := h.Publisher.Publish(ctx, ev); err != nil {
		h.logger().Error("Failed to publish planner event", "type", ev.Type, "plan_id", ev.PlanID, "error", err)
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
