package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultMomentumLogSize is how many momentum entries a user keeps.
const DefaultMomentumLogSize = 30

// User represents an application user with the aggregates the learning loop
// maintains on their behalf.
type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name        string `gorm:"not null;default:''"`
	Timezone    string `gorm:"not null;default:'UTC'"`
	LastLoginAt *time.Time

	// Bounded, append-only history of momentum classifications.
	MomentumLog MomentumLog `gorm:"serializer:json;type:jsonb"`

	// Aggregate correction written by the capacity adjustment loop.
	CapacityBias  float64 `gorm:"not null;default:0"`
	BiasSamples   int     `gorm:"not null;default:0"`
	BiasUpdatedAt *time.Time

	// Associations
	CheckIns           []CheckIn           `gorm:"constraint:OnDelete:CASCADE;"`
	Plans              []DailyPlan         `gorm:"constraint:OnDelete:CASCADE;"`
	Goals              []Goal              `gorm:"constraint:OnDelete:CASCADE;"`
	TrackerConnections []TrackerConnection `gorm:"constraint:OnDelete:CASCADE;"`
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Goal is a longer-running objective that plan tasks may contribute to.
type Goal struct {
	gorm.Model
	UserID     uint   `gorm:"not null;index"`
	Title      string `gorm:"not null"`
	TargetDate *time.Time
	Completed  bool `gorm:"not null;default:false"`
}
