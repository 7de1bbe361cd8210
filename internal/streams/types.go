package streams

import "time"

// Stream name constants
const (
	StreamPlannerEvents      = "planner:events"      // facts for the notification dispatcher
	StreamTrackerCompletions = "tracker:completions" // remote task tracker changes
)

// Consumer group constants
const (
	GroupPlannerWorkers = "planner-workers"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// EventType names a planner fact.
type EventType string

const (
	EventStatusChanged       EventType = "status_changed"
	EventAtRisk              EventType = "at_risk"
	EventRescheduleSuggested EventType = "reschedule_suggested"
	EventRescheduleApplied   EventType = "reschedule_applied"
)

// PlannerEvent is a fact published for an external notifier. It carries no
// rendered message text.
type PlannerEvent struct {
	EventID        string    `json:"event_id"`
	Type           EventType `json:"type"`
	UserID         uint      `json:"user_id"`
	PlanID         uint      `json:"plan_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	RescheduleType string    `json:"reschedule_type,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ProposalID     string    `json:"proposal_id,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// TrackerCompletion is one remote task state change read from
// StreamTrackerCompletions.
type TrackerCompletion struct {
	UserID     uint      `json:"user_id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	Status     string    `json:"status"` // completed/reopened
	OccurredAt time.Time `json:"occurred_at"`
}
