package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// TrackerRepository handles external task tracker connections.
type TrackerRepository struct {
	db *gorm.DB
}

func NewTrackerRepository(db *gorm.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

// UpsertTrackerConnection stores or replaces the access token for a provider.
func (r *TrackerRepository) UpsertTrackerConnection(ctx context.Context, userID uint, provider, accessToken string) (*models.TrackerConnection, error) {
	var conn models.TrackerConnection
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND provider = ?", userID, provider).First(&conn).Error
	switch {
	case err == nil:
		conn.AccessToken = accessToken
		if err := db.Save(&conn).Error; err != nil {
			return nil, fmt.Errorf("update tracker connection: %w", err)
		}
	case err == gorm.ErrRecordNotFound:
		conn = models.TrackerConnection{UserID: userID, Provider: provider, AccessToken: accessToken}
		if err := db.Create(&conn).Error; err != nil {
			return nil, fmt.Errorf("create tracker connection: %w", err)
		}
	default:
		return nil, fmt.Errorf("find tracker connection: %w", err)
	}
	return &conn, nil
}

func (r *TrackerRepository) GetTrackerConnection(ctx context.Context, userID uint, provider string) (*models.TrackerConnection, error) {
	var conn models.TrackerConnection
	if err := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(&conn).Error; err != nil {
		return nil, lookup(err, "tracker connection", provider)
	}
	return &conn, nil
}

// TouchTrackerConnection records a sync. Missing connections are ignored so
// manual syncs work without one.
func (r *TrackerRepository) TouchTrackerConnection(ctx context.Context, userID uint, provider string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.TrackerConnection{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		UpdateColumn("last_synced_at", at).Error
	if err != nil {
		return fmt.Errorf("touch tracker connection: %w", err)
	}
	return nil
}
