// Package repository is the gorm-backed persistence for every aggregate.
// Each repository scopes its queries with the caller's context and turns
// gorm.ErrRecordNotFound into apperr.NotFoundError.
package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jimdaga/capacity-planner/internal/apperr"
)

// Store bundles the repositories so one value satisfies the narrow store
// interfaces of the planning packages.
type Store struct {
	*UserRepository
	*CheckInRepository
	*PlanRepository
	*TrackerRepository
}

// NewStore builds all repositories over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		UserRepository:    NewUserRepository(db),
		CheckInRepository: NewCheckInRepository(db),
		PlanRepository:    NewPlanRepository(db),
		TrackerRepository: NewTrackerRepository(db),
	}
}

// lookup wraps a point-lookup error.
func lookup(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}
	return fmt.Errorf("find %s %v: %w", resource, id, err)
}
