package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// CheckInRepository handles daily check-ins.
type CheckInRepository struct {
	db *gorm.DB
}

func NewCheckInRepository(db *gorm.DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// UpsertCheckIn stores the check-in for (UserID, Date), replacing an existing
// one for the same day. c is reloaded from the stored row.
func (r *CheckInRepository) UpsertCheckIn(ctx context.Context, c *models.CheckIn) error {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"energy_level", "sleep_quality", "stress_level", "mood",
			"capacity_score", "mode", "notes", "updated_at",
		}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("upsert check-in: %w", err)
	}

	if err := db.Where("user_id = ? AND date = ?", c.UserID, c.Date).First(c).Error; err != nil {
		return fmt.Errorf("reload check-in: %w", err)
	}
	return nil
}

// GetCheckIn returns the check-in for one day key.
func (r *CheckInRepository) GetCheckIn(ctx context.Context, userID uint, day time.Time) (*models.CheckIn, error) {
	var c models.CheckIn
	if err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, day).First(&c).Error; err != nil {
		return nil, lookup(err, "check-in", day.Format(time.DateOnly))
	}
	return &c, nil
}

// ListCheckIns returns check-ins with day keys in [from, to], oldest first.
func (r *CheckInRepository) ListCheckIns(ctx context.Context, userID uint, from, to time.Time) ([]models.CheckIn, error) {
	var out []models.CheckIn
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return out, nil
}

// RecentCheckIns returns up to limit of the newest check-ins, oldest first.
func (r *CheckInRepository) RecentCheckIns(ctx context.Context, userID uint, limit int) ([]models.CheckIn, error) {
	var out []models.CheckIn
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list recent check-ins: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
