// Package reschedule decides when a day needs re-planning and produces,
// validates and applies revised task timings.
package reschedule

import (
	"time"

	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/progress"
)

// State is the outcome of one reschedule request. An analysis that needs a
// reschedule has no state until a proposal exists.
type State string

const (
	StateNoActionNeeded State = "no_action_needed"
	StateProposalReady  State = "proposal_ready"
	StateApplied        State = "applied"
	StateDiscarded      State = "discarded"
)

// Source records which path produced a proposal.
type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceAI            Source = "ai"
)

// Type explains why a reschedule is needed.
type Type string

const (
	TypeNone           Type = ""
	TypeSkippedTasks   Type = "skipped_tasks"
	TypeBehindSchedule Type = "behind_schedule"
	TypeOvercommitted  Type = "overcommitted"
)

// Analysis is the outcome of AnalyzeProgress.
type Analysis struct {
	PlanID           uint              `json:"plan_id"`
	State            State             `json:"state,omitempty"`
	NeedsReschedule  bool              `json:"needs_reschedule"`
	Type             Type              `json:"reschedule_type,omitempty"`
	Reason           string            `json:"reschedule_reason"`
	AvailableMinutes int               `json:"available_minutes"`
	Snapshot         progress.Snapshot `json:"snapshot"`
}

// Result is a reschedule proposal and, once applied, its outcome.
type Result struct {
	ProposalID      string              `json:"proposal_id"`
	PlanID          uint                `json:"plan_id"`
	PlanRevision    int                 `json:"plan_revision"`
	Success         bool                `json:"success"`
	Source          Source              `json:"source"`
	State           State               `json:"state"`
	UpdatedTasks    []models.TaskTiming `json:"updated_tasks"`
	DeferredTaskIDs []uint              `json:"deferred_task_ids"`
	Reasoning       string              `json:"reasoning"`
	FallbackReason  string              `json:"fallback_reason,omitempty"`
	AppliedAt       *time.Time          `json:"applied_at,omitempty"`
}

// ScheduledMinutes sums the slot lengths of the updated tasks.
func (r *Result) ScheduledMinutes() int {
	total := 0
	for _, t := range r.UpdatedTasks {
		total += t.Minutes()
	}
	return total
}

// Options tune RescheduleWithAI.
type Options struct {
	IncludeAccuracy bool   `json:"include_accuracy"`
	Instructions    string `json:"instructions,omitempty"`
}

// AccuracyHint summarizes how the user's capacity scores have matched their
// actual completion rates.
type AccuracyHint struct {
	Samples   int     `json:"samples"`
	MeanBias  float64 `json:"mean_bias"`
	Direction string  `json:"direction"`
}

// ProposalTask is one task as presented to the reasoning collaborator.
type ProposalTask struct {
	ID               uint            `json:"id"`
	Title            string          `json:"title"`
	Priority         models.Priority `json:"priority"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	ScheduledStart   *time.Time      `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time      `json:"scheduled_end,omitempty"`
	InProgress       bool            `json:"in_progress"`
	Deferred         bool            `json:"deferred"`
}

// ProposalRequest is the structured prompt sent to the reasoning collaborator.
type ProposalRequest struct {
	PlanID           uint              `json:"plan_id"`
	Date             string            `json:"date"`
	Mode             models.Mode       `json:"mode"`
	CapacityScore    int               `json:"capacity_score"`
	WindowStart      time.Time         `json:"window_start"`
	WindowEnd        time.Time         `json:"window_end"`
	AvailableMinutes int               `json:"available_minutes"`
	Snapshot         progress.Snapshot `json:"snapshot"`
	Tasks            []ProposalTask    `json:"tasks"`
	Accuracy         *AccuracyHint     `json:"accuracy,omitempty"`
	Instructions     string            `json:"instructions,omitempty"`
}

// ProposedSlot is one task timing suggested by the collaborator.
type ProposedSlot struct {
	TaskID uint      `json:"task_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Proposal is the collaborator's answer. It is untrusted until validated.
type Proposal struct {
	Tasks     []ProposedSlot `json:"tasks"`
	Deferred  []uint         `json:"deferred_task_ids"`
	Reasoning string         `json:"reasoning"`
}
