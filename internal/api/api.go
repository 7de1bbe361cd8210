// Package api exposes the planner over JSON HTTP. Every route expects an
// authenticated session and scopes reads and writes to the session user.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/capacity-planner/internal/adjustment"
	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/auth"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
	"github.com/jimdaga/capacity-planner/internal/patterns"
	"github.com/jimdaga/capacity-planner/internal/progress"
	"github.com/jimdaga/capacity-planner/internal/proposals"
	"github.com/jimdaga/capacity-planner/internal/repository"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/streams"
	"github.com/jimdaga/capacity-planner/internal/trackersync"
	"github.com/jimdaga/capacity-planner/internal/validation"
)

const (
	maxBodyBytes   = 1 << 20
	patternHistory = 60 // check-ins loaded for pattern endpoints
)

// EventPublisher publishes planner facts.
type EventPublisher interface {
	Publish(ctx context.Context, ev streams.PlannerEvent) (string, error)
}

// Deps are the collaborators of the handlers. Publisher and CheckPlan may be
// nil.
type Deps struct {
	Store      *repository.Store
	Validator  *validation.Validator
	Detector   *patterns.Detector
	Progress   *progress.Tracker
	Momentum   *momentum.Tracker
	Engine     *reschedule.Engine
	Adjuster   *adjustment.Adjuster
	Reconciler *trackersync.Reconciler
	Proposals  proposals.Store
	Publisher  EventPublisher
	CheckPlan  func(ctx context.Context, planID uint) error
	Logger     *slog.Logger
}

// Handler serves the /api routes.
type Handler struct {
	Deps

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Detector == nil {
		d.Detector = patterns.NewDetector()
	}
	return &Handler{Deps: d, Now: time.Now}
}

// Register mounts the API routes on rg. The caller adds authentication.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.getMe)
	rg.PATCH("/me", h.updateMe)

	rg.POST("/checkins", h.createCheckIn)
	rg.GET("/checkins", h.listCheckIns)

	rg.GET("/patterns", h.getPatterns)
	rg.GET("/patterns/prediction", h.getPrediction)
	rg.GET("/patterns/factors", h.getFactors)

	rg.POST("/plans", h.createPlan)
	rg.GET("/plans/today", h.getTodayPlan)
	rg.GET("/plans/:id", h.getPlan)
	rg.GET("/plans/:id/progress", h.getPlanProgress)
	rg.POST("/plans/:id/analyze", h.analyzePlan)
	rg.POST("/plans/:id/reschedule", h.reschedulePlan)
	rg.POST("/plans/:id/reschedule/apply", h.applyReschedule)
	rg.POST("/plans/:id/reschedule/discard", h.discardReschedule)
	rg.GET("/plans/:id/reschedules", h.listReschedules)

	rg.POST("/tasks/:id/start", h.startTask)
	rg.POST("/tasks/:id/complete", h.completeTask)
	rg.POST("/tasks/:id/reopen", h.reopenTask)

	rg.GET("/progress/history", h.getProgressHistory)
	rg.GET("/momentum", h.getMomentum)
	rg.GET("/momentum/history", h.getMomentumHistory)

	rg.POST("/capacity/adjust", h.adjustCapacity)
	rg.GET("/capacity/insights", h.getCapacityInsights)

	rg.PUT("/tracker/connections/:provider", h.connectTracker)
	rg.POST("/tracker/sync", h.syncTracker)
}

// fail writes err with the status of its kind. Internal errors are logged
// and their message is not exposed.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "kind": apperr.Kind(err)})
}

// body reads the request body. An empty body yields nil.
func body(c *gin.Context) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperr.Validation("body", "unreadable: %v", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, apperr.Validation("body", "exceeds %d bytes", maxBodyBytes)
	}
	return raw, nil
}

// bindRaw decodes an optional JSON body.
func bindRaw(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("body", "invalid JSON: %v", err)
	}
	return nil
}

func idParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(name, "must be a positive integer")
	}
	return uint(id), nil
}

func intQuery(c *gin.Context, name string, def, min, max int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, apperr.Validation(name, "must be an integer between %d and %d", min, max)
	}
	return n, nil
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, error) {
	return h.Store.GetUser(c.Request.Context(), auth.UserID(c))
}

// ownedPlan loads the plan named by :id. Plans of other users are reported
// as missing.
func (h *Handler) ownedPlan(c *gin.Context) (*models.DailyPlan, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	plan, err := h.Store.GetPlan(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if plan.UserID != auth.UserID(c) {
		return nil, apperr.NotFound("plan", id)
	}
	return plan, nil
}

func (h *Handler) ownedTaskID(c *gin.Context) (uint, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return 0, err
	}
	owner, err := h.Store.TaskOwner(c.Request.Context(), id)
	if err != nil {
		return 0, err
	}
	if owner != auth.UserID(c) {
		return 0, apperr.NotFound("task", id)
	}
	return id, nil
}

func (h *Handler) publish(ctx context.Context, ev streams.PlannerEvent) {
	if h.Publisher == nil {
		return
	}
	if _, err := h.Publisher.Publish(ctx, ev); err != nil {
		h.Logger.Error("Failed to publish planner event", "type", ev.Type, "plan_id", ev.PlanID, "error", err)
	}
}

// scheduleCheck queues a background re-evaluation of the plan.
func (h *Handler) scheduleCheck(ctx context.Context, planID uint) {
	if h.CheckPlan == nil {
		return
	}
	if err := h.CheckPlan(ctx, planID); err != nil {
		h.Logger.Warn("Failed to queue plan check", "plan_id", planID, "error", err)
	}
}

func isNotFound(err error) bool {
	var nf *apperr.NotFoundError
	return errors.As(err, &nf)
}
