package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskSweepPlans     = "plans:sweep"
	TaskCheckPlan      = "plan:check"
	TaskSweepCapacity  = "capacity:sweep"
	TaskAdjustCapacity = "capacity:adjust"
)

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// Client returns the global Asynq client, or nil before InitClient.
func Client() *asynq.Client {
	return client
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

type planPayload struct {
	PlanID uint `json:"plan_id"`
}

type userPayload struct {
	UserID uint `json:"user_id"`
}

// NewCheckPlanTask builds a plan:check task. Checks of the same plan are
// deduplicated for ten minutes.
func NewCheckPlanTask(planID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(planPayload{PlanID: planID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskCheckPlan,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(10*time.Minute),
	), nil
}

// NewAdjustCapacityTask builds a capacity:adjust task for one user.
func NewAdjustCapacityTask(userID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(userPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskAdjustCapacity,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(12*time.Hour),
	), nil
}

// newSweepTask builds a periodic fan-out task. The handler walks all users.
func newSweepTask(taskType string) *asynq.Task {
	return asynq.NewTask(
		taskType,
		nil, // Empty payload - handler will query all users
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute), // Longer timeout for processing all users
		asynq.Retention(24*time.Hour),
	)
}

// EnqueueCheckPlan enqueues a plan:check task on the global client. A check
// already queued for the plan is not an error.
func EnqueueCheckPlan(ctx context.Context, planID uint) error {
	if client == nil {
		return errors.New("task client not initialized")
	}
	return enqueue(ctx, client, func() (*asynq.Task, error) { return NewCheckPlanTask(planID) })
}

func enqueue(ctx context.Context, e Enqueuer, build func() (*asynq.Task, error)) error {
	task, err := build()
	if err != nil {
		return err
	}
	_, err = e.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
