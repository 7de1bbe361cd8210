package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// UserRepository handles users and the aggregates stored on them.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookup(err, "user", id)
	}
	return &user, nil
}

// UpsertByEmail finds or creates a user by email and records the login.
func (r *UserRepository) UpsertByEmail(ctx context.Context, email, name string, loginAt time.Time) (*models.User, error) {
	var user models.User
	db := r.db.WithContext(ctx)
	err := db.Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"last_login_at": loginAt}
		if name != "" {
			updates["name"] = name
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Email: email, Name: name, Timezone: "UTC", LastLoginAt: &loginAt}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateTimezone validates and stores an IANA timezone name.
func (r *UserRepository) UpdateTimezone(ctx context.Context, userID uint, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return r.updateColumns(ctx, userID, map[string]interface{}{"timezone": tz})
}

// SaveMomentumLog replaces the user's momentum log.
func (r *UserRepository) SaveMomentumLog(ctx context.Context, userID uint, log models.MomentumLog) error {
	// Updates with a map skips the serializer, so go through the model.
	res := r.db.WithContext(ctx).Model(&models.User{Model: gorm.Model{ID: userID}}).
		Select("MomentumLog").Updates(&models.User{MomentumLog: log})
	if res.Error != nil {
		return fmt.Errorf("save momentum log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return lookup(gorm.ErrRecordNotFound, "user", userID)
	}
	return nil
}

// SaveCapacityBias stores the aggregate bias written by the adjustment loop.
func (r *UserRepository) SaveCapacityBias(ctx context.Context, userID uint, bias float64, samples int, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]interface{}{
		"capacity_bias":   bias,
		"bias_samples":    samples,
		"bias_updated_at": at,
	})
}

func (r *UserRepository) updateColumns(ctx context.Context, userID uint, cols map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookup(gorm.ErrRecordNotFound, "user", userID)
	}
	return nil
}

// GetGoal returns a goal owned by userID.
func (r *UserRepository) GetGoal(ctx context.Context, userID, goalID uint) (*models.Goal, error) {
	var goal models.Goal
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, goalID).First(&goal).Error; err != nil {
		return nil, lookup(err, "goal", goalID)
	}
	return &goal, nil
}
