package models

import "time"

// Mood is the self-reported mood of a check-in.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNeutral  Mood = "neutral"
	MoodNegative Mood = "negative"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodPositive, MoodNeutral, MoodNegative:
		return true
	}
	return false
}

// Mode is the scheduling intensity derived from a capacity score.
type Mode string

const (
	ModeRecovery Mode = "recovery"
	ModeBalanced Mode = "balanced"
	ModeDeepWork Mode = "deep_work"
)

// CheckIn is a user's daily self-assessment. There is at most one per user
// per day key; a second submission on the same day replaces the first.
type CheckIn struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:uidx_check_ins_user_date" json:"user_id"`
	Date          time.Time `gorm:"type:date;not null;uniqueIndex:uidx_check_ins_user_date" json:"date"`
	EnergyLevel   int       `gorm:"not null" json:"energy_level"`
	SleepQuality  int       `gorm:"not null" json:"sleep_quality"`
	StressLevel   int       `gorm:"not null" json:"stress_level"`
	Mood          Mood      `gorm:"type:varchar(16);not null" json:"mood"`
	CapacityScore int       `gorm:"not null" json:"capacity_score"`
	Mode          Mode      `gorm:"type:varchar(16);not null" json:"mode"`
	Notes         string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
