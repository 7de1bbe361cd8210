package reschedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/progress"
)

// Store is the persistence the engine needs.
type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetPlan(ctx context.Context, planID uint) (*models.DailyPlan, error)
	// ApplyReschedule writes timings and deferrals for planID atomically,
	// records event and returns the plan's new revision.
	ApplyReschedule(ctx context.Context, planID uint, timings []models.TaskTiming, deferred []uint, event *models.RescheduleEvent) (int, error)
}

// Proposer is the external reasoning collaborator.
type Proposer interface {
	ProposeReschedule(ctx context.Context, req ProposalRequest) (*Proposal, error)
}

// AccuracySource supplies historical capacity accuracy for AI prompts.
type AccuracySource interface {
	AccuracyHint(ctx context.Context, userID uint, now time.Time) (*AccuracyHint, error)
}

// Policy holds the engine's thresholds.
type Policy struct {
	BehindMinutes  int
	SlotMinutes    int
	WorkdayEndHour int
	WorkdayEndMin  int
	AITimeout      time.Duration
	Progress       progress.Thresholds
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BehindMinutes:  15,
		SlotMinutes:    5,
		WorkdayEndHour: 18,
		AITimeout:      20 * time.Second,
	}
}

// Engine runs reschedule requests. It holds no per-request state.
type Engine struct {
	store    Store
	proposer Proposer
	accuracy AccuracySource
	policy   Policy
	logger   *slog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewEngine builds an Engine. proposer and accuracy may be nil.
func NewEngine(store Store, proposer Proposer, accuracy AccuracySource, policy Policy, logger *slog.Logger) *Engine {
	if policy.SlotMinutes <= 0 {
		policy.SlotMinutes = 5
	}
	if policy.BehindMinutes <= 0 {
		policy.BehindMinutes = 15
	}
	if policy.AITimeout <= 0 {
		policy.AITimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, proposer: proposer, accuracy: accuracy, policy: policy, logger: logger, Now: time.Now}
}

type planContext struct {
	plan        *models.DailyPlan
	user        *models.User
	now         time.Time
	windowStart time.Time
	windowEnd   time.Time
	available   int
}

func (e *Engine) load(ctx context.Context, planID uint) (*planContext, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	user, err := e.store.GetUser(ctx, plan.UserID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	pc := &planContext{plan: plan, user: user, now: now}
	pc.windowStart = roundUp(now, time.Duration(e.policy.SlotMinutes)*time.Minute)
	pc.windowEnd = e.windowEnd(plan, user.Location())
	pc.available = availableMinutes(pc.windowStart, pc.windowEnd)
	return pc, nil
}

func (e *Engine) windowEnd(plan *models.DailyPlan, loc *time.Location) time.Time {
	if plan.WindowEnd != nil {
		return *plan.WindowEnd
	}
	start, _ := models.DayBounds(plan.Date, loc)
	return time.Date(start.Year(), start.Month(), start.Day(), e.policy.WorkdayEndHour, e.policy.WorkdayEndMin, 0, 0, loc)
}

// AnalyzeProgress decides whether the plan needs intervention now.
func (e *Engine) AnalyzeProgress(ctx context.Context, planID uint) (*Analysis, error) {
	pc, err := e.load(ctx, planID)
	if err != nil {
		return nil, err
	}
	snap := progress.Summarize(pc.plan, pc.now, e.policy.Progress)
	a := &Analysis{PlanID: planID, Snapshot: snap, AvailableMinutes: pc.available}

	switch {
	case snap.RemainingTasks == 0:
		a.Reason = "All tasks are completed."
	case snap.Status == progress.StatusAtRisk && snap.SkippedTasks > 0:
		a.NeedsReschedule, a.Type = true, TypeSkippedTasks
		a.Reason = fmt.Sprintf("%d task(s) passed their scheduled end without being completed.", snap.SkippedTasks)
	case snap.Status == progress.StatusAtRisk:
		a.NeedsReschedule, a.Type = true, TypeBehindSchedule
		a.Reason = fmt.Sprintf("The day is %d minutes behind plan.", -snap.MinutesAheadBehind)
	case snap.MinutesAheadBehind < -e.policy.BehindMinutes && snap.RemainingMinutes > pc.available:
		a.NeedsReschedule, a.Type = true, TypeOvercommitted
		a.Reason = fmt.Sprintf("%d minutes of work remain but only %d minutes are left today.", snap.RemainingMinutes, pc.available)
	case snap.MinutesAheadBehind > 0:
		a.Reason = fmt.Sprintf("Ahead of plan by %d minutes.", snap.MinutesAheadBehind)
	case snap.MinutesAheadBehind < 0:
		a.Reason = fmt.Sprintf("Behind by %d minutes, which the remaining time can absorb.", -snap.MinutesAheadBehind)
	default:
		a.Reason = "On track."
	}
	if !a.NeedsReschedule {
		a.State = StateNoActionNeeded
	}
	return a, nil
}

// RescheduleAfternoon produces a deterministic proposal for the remaining
// tasks. Nothing is persisted.
func (e *Engine) RescheduleAfternoon(ctx context.Context, planID uint) (*Result, error) {
	pc, err := e.load(ctx, planID)
	if err != nil {
		return nil, err
	}
	return e.deterministic(pc), nil
}

func (e *Engine) deterministic(pc *planContext) *Result {
	timings, deferred, used := Distribute(pc.plan.Tasks, pc.windowStart, pc.windowEnd)
	return &Result{
		ProposalID:      uuid.NewString(),
		PlanID:          pc.plan.ID,
		PlanRevision:    pc.plan.Revision,
		Success:         true,
		Source:          SourceDeterministic,
		State:           StateProposalReady,
		UpdatedTasks:    timings,
		DeferredTaskIDs: deferred,
		Reasoning:       distributionReasoning(len(timings), len(deferred), used, pc.available),
	}
}

// RescheduleWithAI asks the reasoning collaborator for a proposal and
// validates it. Any collaborator failure or invalid proposal falls back to
// the deterministic proposal, annotated with the failure.
func (e *Engine) RescheduleWithAI(ctx context.Context, planID uint, opts Options) (*Result, error) {
	pc, err := e.load(ctx, planID)
	if err != nil {
		return nil, err
	}
	if e.proposer == nil {
		return e.fallback(pc, errors.New("no reasoning collaborator configured")), nil
	}

	req := e.buildRequest(ctx, pc, opts)

	aiCtx, cancel := context.WithTimeout(ctx, e.policy.AITimeout)
	defer cancel()

	proposal, err := e.proposer.ProposeReschedule(aiCtx, req)
	if err != nil {
		if aiCtx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", e.policy.AITimeout, err)
		}
		return e.fallback(pc, apperr.External("reasoning collaborator", err)), nil
	}

	timings, deferred, err := ValidateProposal(proposal, pc.plan.Tasks, pc.windowStart, pc.windowEnd)
	if err != nil {
		return e.fallback(pc, err), nil
	}

	reasoning := proposal.Reasoning
	if reasoning == "" {
		reasoning = "Revised by the reasoning collaborator."
	}
	return &Result{
		ProposalID:      uuid.NewString(),
		PlanID:          pc.plan.ID,
		PlanRevision:    pc.plan.Revision,
		Success:         true,
		Source:          SourceAI,
		State:           StateProposalReady,
		UpdatedTasks:    timings,
		DeferredTaskIDs: deferred,
		Reasoning:       reasoning,
	}, nil
}

func (e *Engine) fallback(pc *planContext, cause error) *Result {
	e.logger.Warn("AI reschedule failed, using deterministic fallback",
		"plan_id", pc.plan.ID,
		"kind", apperr.Kind(cause),
		"error", cause,
	)
	r := e.deterministic(pc)
	r.FallbackReason = cause.Error()
	r.Reasoning = "AI proposal was not used (" + cause.Error() + "). " + r.Reasoning
	return r
}

func (e *Engine) buildRequest(ctx context.Context, pc *planContext, opts Options) ProposalRequest {
	req := ProposalRequest{
		PlanID:           pc.plan.ID,
		Date:             pc.plan.Date.Format(time.DateOnly),
		Mode:             pc.plan.Mode,
		CapacityScore:    pc.plan.CapacityScore,
		WindowStart:      pc.windowStart,
		WindowEnd:        pc.windowEnd,
		AvailableMinutes: pc.available,
		Snapshot:         progress.Summarize(pc.plan, pc.now, e.policy.Progress),
		Instructions:     opts.Instructions,
	}
	for _, t := range incomplete(pc.plan.Tasks) {
		req.Tasks = append(req.Tasks, ProposalTask{
			ID:               t.ID,
			Title:            t.Title,
			Priority:         t.Priority,
			EstimatedMinutes: t.EstimatedMinutes,
			ScheduledStart:   t.ScheduledStart,
			ScheduledEnd:     t.ScheduledEnd,
			InProgress:       t.InProgress(),
			Deferred:         t.Deferred,
		})
	}

	if opts.IncludeAccuracy && e.accuracy != nil {
		hint, err := e.accuracy.AccuracyHint(ctx, pc.plan.UserID, pc.now)
		if err != nil {
			e.logger.Warn("Failed to load capacity accuracy for prompt", "user_id", pc.plan.UserID, "error", err)
		} else {
			req.Accuracy = hint
		}
	}
	return req
}

// ApplyReschedule persists a ready proposal. The plan is left untouched on
// any error.
func (e *Engine) ApplyReschedule(ctx context.Context, planID uint, result *Result) (*Result, error) {
	if result == nil {
		return nil, apperr.Validation("result", "is required")
	}
	if result.PlanID != planID {
		return nil, apperr.Validation("plan_id", "proposal is for plan %d, not %d", result.PlanID, planID)
	}
	if result.State != StateProposalReady || !result.Success {
		return nil, apperr.Validation("state", "proposal is %s and cannot be applied", result.State)
	}
	if result.ProposalID == "" {
		return nil, apperr.Validation("proposal_id", "is required")
	}

	appliedAt := e.Now().UTC()
	applied := *result
	applied.State = StateApplied
	applied.AppliedAt = &appliedAt

	payload, err := json.Marshal(applied)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reschedule event: %w", err)
	}
	event := &models.RescheduleEvent{
		PlanID:     planID,
		ProposalID: result.ProposalID,
		Source:     string(result.Source),
		Reasoning:  result.Reasoning,
		Payload:    datatypes.JSON(payload),
		AppliedAt:  appliedAt,
	}

	revision, err := e.store.ApplyReschedule(ctx, planID, result.UpdatedTasks, result.DeferredTaskIDs, event)
	if err != nil {
		return nil, err
	}
	applied.PlanRevision = revision

	e.logger.Info("Applied reschedule",
		"plan_id", planID,
		"proposal_id", result.ProposalID,
		"source", result.Source,
		"revision", revision,
		"updated", len(result.UpdatedTasks),
		"deferred", len(result.DeferredTaskIDs),
	)
	return &applied, nil
}

// Discard marks a ready proposal as discarded. It has no side effects.
func (e *Engine) Discard(result *Result) (*Result, error) {
	if result == nil {
		return nil, apperr.Validation("result", "is required")
	}
	if result.State != StateProposalReady {
		return nil, apperr.Validation("state", "proposal is %s and cannot be discarded", result.State)
	}
	discarded := *result
	discarded.State = StateDiscarded
	return &discarded, nil
}
