package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
)

// PlanRepository handles daily plans, their tasks and reschedule events.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func orderedTasks(db *gorm.DB) *gorm.DB {
	return db.Order("position, id")
}

// CreatePlan inserts a plan with its tasks. Goal references must belong to
// the plan's user.
func (r *PlanRepository) CreatePlan(ctx context.Context, plan *models.DailyPlan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range plan.Tasks {
			if t.GoalID == nil {
				continue
			}
			var n int64
			if err := tx.Model(&models.Goal{}).Where("id = ? AND user_id = ?", *t.GoalID, plan.UserID).Count(&n).Error; err != nil {
				return fmt.Errorf("check goal: %w", err)
			}
			if n == 0 {
				return apperr.NotFound("goal", *t.GoalID)
			}
		}
		if err := tx.Create(plan).Error; err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		return nil
	})
}

// GetPlan loads a plan with its tasks ordered by position.
func (r *PlanRepository) GetPlan(ctx context.Context, planID uint) (*models.DailyPlan, error) {
	var plan models.DailyPlan
	if err := r.db.WithContext(ctx).Preload("Tasks", orderedTasks).First(&plan, planID).Error; err != nil {
		return nil, lookup(err, "plan", planID)
	}
	return &plan, nil
}

// CurrentPlan returns the most recently created plan for a day key.
func (r *PlanRepository) CurrentPlan(ctx context.Context, userID uint, day time.Time) (*models.DailyPlan, error) {
	var plan models.DailyPlan
	if err := r.db.WithContext(ctx).
		Preload("Tasks", orderedTasks).
		Where("user_id = ? AND date = ?", userID, day).
		Order("created_at DESC, id DESC").
		First(&plan).Error; err != nil {
		return nil, lookup(err, "plan", day.Format(time.DateOnly))
	}
	return &plan, nil
}

// ListLatestPlans returns the newest plan of each day in [from, to], oldest
// day first.
func (r *PlanRepository) ListLatestPlans(ctx context.Context, userID uint, from, to time.Time) ([]models.DailyPlan, error) {
	var plans []models.DailyPlan
	if err := r.db.WithContext(ctx).
		Preload("Tasks", orderedTasks).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date, created_at DESC, id DESC").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	out := plans[:0]
	for _, p := range plans {
		if len(out) > 0 && out[len(out)-1].Date.Equal(p.Date) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PlanRepository) GetTask(ctx context.Context, taskID uint) (*models.PlanTask, error) {
	var task models.PlanTask
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, lookup(err, "task", taskID)
	}
	return &task, nil
}

// TaskOwner returns the user whose plan contains taskID.
func (r *PlanRepository) TaskOwner(ctx context.Context, taskID uint) (uint, error) {
	var owner struct{ UserID uint }
	err := r.db.WithContext(ctx).
		Table("plan_tasks").
		Select("daily_plans.user_id").
		Joins("JOIN daily_plans ON daily_plans.id = plan_tasks.plan_id AND daily_plans.deleted_at IS NULL").
		Where("plan_tasks.id = ?", taskID).
		Take(&owner).Error
	if err != nil {
		return 0, lookup(err, "task", taskID)
	}
	return owner.UserID, nil
}

// SaveTask writes every column of task. Concurrent saves are last-write-wins.
func (r *PlanRepository) SaveTask(ctx context.Context, task *models.PlanTask) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// FindTaskByExternalID returns the newest task of userID linked to an
// external tracker id.
func (r *PlanRepository) FindTaskByExternalID(ctx context.Context, userID uint, externalID string) (*models.PlanTask, error) {
	var task models.PlanTask
	err := r.db.WithContext(ctx).
		Select("plan_tasks.*").
		Joins("JOIN daily_plans ON daily_plans.id = plan_tasks.plan_id AND daily_plans.deleted_at IS NULL").
		Where("daily_plans.user_id = ? AND plan_tasks.external_id = ?", userID, externalID).
		Order("plan_tasks.id DESC").
		First(&task).Error
	if err != nil {
		return nil, lookup(err, "task", externalID)
	}
	return &task, nil
}

// ApplyReschedule writes new timings and deferrals for a plan in one
// transaction holding the plan row lock. It fails with a ConsistencyError,
// leaving everything untouched, when a referenced task no longer belongs to
// the plan or has been completed.
func (r *PlanRepository) ApplyReschedule(ctx context.Context, planID uint, timings []models.TaskTiming, deferred []uint, event *models.RescheduleEvent) (int, error) {
	var revision int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.DailyPlan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&plan, planID).Error; err != nil {
			return lookup(err, "plan", planID)
		}
		if event != nil {
			var applied int64
			if err := tx.Model(&models.RescheduleEvent{}).Where("proposal_id = ?", event.ProposalID).Count(&applied).Error; err != nil {
				return fmt.Errorf("check reschedule event: %w", err)
			}
			if applied > 0 {
				return alreadyApplied(planID, event.ProposalID)
			}
		}

		var tasks []models.PlanTask
		if err := tx.Where("plan_id = ?", planID).Find(&tasks).Error; err != nil {
			return fmt.Errorf("load plan tasks: %w", err)
		}
		byID := make(map[uint]*models.PlanTask, len(tasks))
		for i := range tasks {
			byID[tasks[i].ID] = &tasks[i]
		}
		check := func(id uint) error {
			t, ok := byID[id]
			if !ok {
				return &apperr.ConsistencyError{PlanID: planID, Reason: fmt.Sprintf("task %d is no longer part of the plan", id)}
			}
			if t.Completed {
				return &apperr.ConsistencyError{PlanID: planID, Reason: fmt.Sprintf("task %d was completed", id)}
			}
			return nil
		}

		for _, tm := range timings {
			if err := check(tm.TaskID); err != nil {
				return err
			}
		}
		for _, id := range deferred {
			if err := check(id); err != nil {
				return err
			}
		}

		for _, tm := range timings {
			if err := tx.Model(&models.PlanTask{}).Where("id = ?", tm.TaskID).Updates(map[string]interface{}{
				"scheduled_start": tm.NewStart.UTC(),
				"scheduled_end":   tm.NewEnd.UTC(),
				"deferred":        false,
			}).Error; err != nil {
				return fmt.Errorf("update task %d: %w", tm.TaskID, err)
			}
		}
		if len(deferred) > 0 {
			if err := tx.Model(&models.PlanTask{}).Where("id IN ?", deferred).Updates(map[string]interface{}{
				"scheduled_start": nil,
				"scheduled_end":   nil,
				"deferred":        true,
			}).Error; err != nil {
				return fmt.Errorf("defer tasks: %w", err)
			}
		}

		revision = plan.Revision + 1
		if err := tx.Model(&plan).Update("revision", revision).Error; err != nil {
			return fmt.Errorf("bump plan revision: %w", err)
		}
		if event != nil {
			event.PlanID = planID
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("record reschedule event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var ce *apperr.ConsistencyError
		var nf *apperr.NotFoundError
		if errors.As(err, &ce) || errors.As(err, &nf) {
			return 0, err
		}
		// A concurrent apply of the same proposal committed first.
		if errors.Is(err, gorm.ErrDuplicatedKey) && event != nil {
			return 0, alreadyApplied(planID, event.ProposalID)
		}
		return 0, apperr.External("database", err)
	}
	return revision, nil
}

func alreadyApplied(planID uint, proposalID string) error {
	return &apperr.ConsistencyError{PlanID: planID, Reason: fmt.Sprintf("proposal %s was already applied", proposalID)}
}

// RescheduleEvents lists the applied reschedules of a plan, oldest first.
func (r *PlanRepository) RescheduleEvents(ctx context.Context, planID uint) ([]models.RescheduleEvent, error) {
	var events []models.RescheduleEvent
	if err := r.db.WithContext(ctx).Where("plan_id = ?", planID).Order("applied_at, id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list reschedule events: %w", err)
	}
	return events, nil
}
