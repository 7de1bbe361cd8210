// Package trackersync reconciles completion events from an external task
// tracker with locally recorded plan tasks.
//
// Conflict policy:
//
//	local       remote                   action
//	incomplete  completed                complete locally at the remote time
//	completed   completed, earlier time  move completion to the remote time
//	completed   completed, later/equal   keep local
//	completed   reopened                 keep local
//	incomplete  reopened                 no-op
package trackersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/progress"
)

// Status is the remote state reported by an event.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusReopened  Status = "reopened"
)

// Event is one remote state change.
type Event struct {
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Action names what the reconciler did with one event.
type Action string

const (
	ActionCompleted    Action = "completed"
	ActionMovedEarlier Action = "moved_earlier"
	ActionKeptLocal    Action = "kept_local"
	ActionNoOp         Action = "no_op"
	ActionUnmatched    Action = "unmatched"
	ActionInvalid      Action = "invalid"
)

// Outcome records the decision for one event.
type Outcome struct {
	ExternalID string `json:"external_id"`
	TaskID     uint   `json:"task_id,omitempty"`
	Action     Action `json:"action"`
	Detail     string `json:"detail,omitempty"`
}

// Report summarizes one Apply call.
type Report struct {
	Received     int       `json:"received"`
	Completed    int       `json:"completed"`
	MovedEarlier int       `json:"moved_earlier"`
	KeptLocal    int       `json:"kept_local"`
	NoOps        int       `json:"no_ops"`
	Unmatched    int       `json:"unmatched"`
	Invalid      int       `json:"invalid"`
	Outcomes     []Outcome `json:"outcomes"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Action {
	case ActionCompleted:
		r.Completed++
	case ActionMovedEarlier:
		r.MovedEarlier++
	case ActionKeptLocal:
		r.KeptLocal++
	case ActionNoOp:
		r.NoOps++
	case ActionUnmatched:
		r.Unmatched++
	case ActionInvalid:
		r.Invalid++
	}
}

// Store is the persistence the reconciler needs.
type Store interface {
	FindTaskByExternalID(ctx context.Context, userID uint, externalID string) (*models.PlanTask, error)
	SaveTask(ctx context.Context, task *models.PlanTask) error
	TouchTrackerConnection(ctx context.Context, userID uint, provider string, at time.Time) error
}

// Completer records a completion the same way a local completion is recorded.
type Completer interface {
	RecordTaskCompletion(ctx context.Context, taskID uint, ts time.Time) (*progress.Completion, error)
}

// Reconciler applies remote events under the conflict policy.
type Reconciler struct {
	store     Store
	completer Completer
	logger    *slog.Logger

	Now func() time.Time
}

// NewReconciler builds a Reconciler.
func NewReconciler(store Store, completer Completer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, completer: completer, logger: logger, Now: time.Now}
}

// Apply reconciles events for userID in occurrence order. Invalid and
// unmatched events are reported, not returned as errors; persistence
// failures abort the call.
func (r *Reconciler) Apply(ctx context.Context, userID uint, events []Event) (*Report, error) {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OccurredAt.Before(ordered[j].OccurredAt) })

	report := &Report{Received: len(events), Outcomes: make([]Outcome, 0, len(events))}
	providers := map[string]bool{}

	for _, ev := range ordered {
		if err := validate(ev); err != nil {
			report.add(Outcome{ExternalID: ev.ExternalID, Action: ActionInvalid, Detail: err.Error()})
			continue
		}
		if ev.Provider != "" {
			providers[ev.Provider] = true
		}

		outcome, err := r.apply(ctx, userID, ev)
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}

	now := r.Now().UTC()
	for p := range providers {
		if err := r.store.TouchTrackerConnection(ctx, userID, p, now); err != nil {
			return report, fmt.Errorf("failed to update tracker connection: %w", err)
		}
	}

	r.logger.Info("Reconciled tracker events",
		"user_id", userID,
		"received", report.Received,
		"completed", report.Completed,
		"moved_earlier", report.MovedEarlier,
		"unmatched", report.Unmatched,
		"invalid", report.Invalid,
	)
	return report, nil
}

func validate(ev Event) error {
	if ev.ExternalID == "" {
		return apperr.Validation("external_id", "is required")
	}
	if ev.OccurredAt.IsZero() {
		return apperr.Validation("occurred_at", "is required")
	}
	if ev.Status != StatusCompleted && ev.Status != StatusReopened {
		return apperr.Validation("status", "unknown status %q", ev.Status)
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, userID uint, ev Event) (Outcome, error) {
	out := Outcome{ExternalID: ev.ExternalID}

	task, err := r.store.FindTaskByExternalID(ctx, userID, ev.ExternalID)
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		out.Action = ActionUnmatched
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("failed to look up task %s: %w", ev.ExternalID, err)
	}
	out.TaskID = task.ID

	switch {
	case ev.Status == StatusReopened && task.Completed:
		out.Action = ActionKeptLocal
		out.Detail = "local completion is kept"

	case ev.Status == StatusReopened:
		out.Action = ActionNoOp

	case !task.Completed:
		_, err := r.completer.RecordTaskCompletion(ctx, task.ID, ev.OccurredAt)
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			out.Action = ActionInvalid
			out.Detail = ve.Error()
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to complete task %d: %w", task.ID, err)
		}
		out.Action = ActionCompleted

	case task.CompletedAt != nil && ev.OccurredAt.Before(*task.CompletedAt):
		moveCompletion(task, ev.OccurredAt)
		if err := r.store.SaveTask(ctx, task); err != nil {
			return out, fmt.Errorf("failed to save task %d: %w", task.ID, err)
		}
		out.Action = ActionMovedEarlier

	default:
		out.Action = ActionKeptLocal
		out.Detail = "local completion is not later than remote"
	}
	return out, nil
}

// moveCompletion sets an earlier completion time and re-measures the task
// when the new time is still after its recorded start.
func moveCompletion(task *models.PlanTask, ts time.Time) {
	done := ts.UTC()
	task.CompletedAt = &done
	if task.StartedAt == nil || ts.Before(*task.StartedAt) {
		return
	}
	minutes := int(math.Round(ts.Sub(*task.StartedAt).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	task.ActualMinutes = &minutes
}
