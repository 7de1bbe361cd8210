package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Priority orders tasks when the day has to be compressed.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight, higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// DailyPlan is one revision of a user's plan for a day. The current plan is
// the most recently created one for the day key.
type DailyPlan struct {
	gorm.Model
	UserID        uint       `gorm:"not null;index:idx_daily_plans_user_date"`
	Date          time.Time  `gorm:"type:date;not null;index:idx_daily_plans_user_date"`
	CapacityScore int        `gorm:"not null"`
	Mode          Mode       `gorm:"type:varchar(16);not null"`
	Reasoning     string     `gorm:"type:text"`
	WindowEnd     *time.Time // end of the working window, nil means policy default
	Revision      int        `gorm:"not null;default:0"`
	Tasks         []PlanTask `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE;"`
}

// PlanTask is a single scheduled unit of work inside a plan.
type PlanTask struct {
	ID               uint     `gorm:"primaryKey" json:"id"`
	PlanID           uint     `gorm:"not null;index" json:"plan_id"`
	Position         int      `gorm:"not null" json:"position"`
	Title            string   `gorm:"not null" json:"title"`
	Description      string   `gorm:"type:text" json:"description,omitempty"`
	Priority         Priority `gorm:"type:varchar(8);not null;default:'medium'" json:"priority"`
	EstimatedMinutes int      `gorm:"not null" json:"estimated_minutes"`

	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	Completed      bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ActualMinutes  *int       `json:"actual_minutes,omitempty"`
	Deferred       bool       `gorm:"not null;default:false" json:"deferred"`

	ExternalID *string `gorm:"index" json:"external_id,omitempty"`
	GoalID     *uint   `gorm:"index" json:"goal_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InProgress reports whether the task was started and not yet completed.
func (t *PlanTask) InProgress() bool {
	return t.StartedAt != nil && !t.Completed
}

// RescheduleEvent is the audit record of an applied reschedule.
type RescheduleEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	PlanID     uint           `gorm:"not null;index" json:"plan_id"`
	ProposalID string         `gorm:"not null;uniqueIndex" json:"proposal_id"`
	Source     string         `gorm:"type:varchar(16);not null" json:"source"`
	Reasoning  string         `gorm:"type:text" json:"reasoning"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	AppliedAt  time.Time      `gorm:"not null" json:"applied_at"`
}

// TaskTiming is a new slot for one task produced by a reschedule.
type TaskTiming struct {
	TaskID   uint      `json:"task_id"`
	NewStart time.Time `json:"new_start"`
	NewEnd   time.Time `json:"new_end"`
}

// Minutes is the length of the slot.
func (t TaskTiming) Minutes() int {
	return int(t.NewEnd.Sub(t.NewStart).Minutes())
}
