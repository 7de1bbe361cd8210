package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/auth"
	"github.com/jimdaga/capacity-planner/internal/capacity"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/validation"
)

type planView struct {
	ID            uint              `json:"id"`
	UserID        uint              `json:"user_id"`
	Date          string            `json:"date"`
	CapacityScore int               `json:"capacity_score"`
	Mode          models.Mode       `json:"mode"`
	Reasoning     string            `json:"reasoning,omitempty"`
	WindowEnd     *time.Time        `json:"window_end,omitempty"`
	Revision      int               `json:"revision"`
	CreatedAt     time.Time         `json:"created_at"`
	Tasks         []models.PlanTask `json:"tasks"`
}

func newPlanView(p *models.DailyPlan) planView {
	tasks := p.Tasks
	if tasks == nil {
		tasks = []models.PlanTask{}
	}
	return planView{
		ID:            p.ID,
		UserID:        p.UserID,
		Date:          p.Date.UTC().Format(dateLayout),
		CapacityScore: p.CapacityScore,
		Mode:          p.Mode,
		Reasoning:     p.Reasoning,
		WindowEnd:     p.WindowEnd,
		Revision:      p.Revision,
		CreatedAt:     p.CreatedAt,
		Tasks:         tasks,
	}
}

type taskRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Priority         models.Priority `json:"priority"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	ScheduledStart   *time.Time      `json:"scheduled_start"`
	ScheduledEnd     *time.Time      `json:"scheduled_end"`
	ExternalID       *string         `json:"external_id"`
	GoalID           *uint           `json:"goal_id"`
}

type planRequest struct {
	Date          string        `json:"date"`
	CapacityScore *int          `json:"capacity_score"`
	Mode          models.Mode   `json:"mode"`
	Reasoning     string        `json:"reasoning"`
	WindowEnd     *time.Time    `json:"window_end"`
	Tasks         []taskRequest `json:"tasks"`
}

// createPlan stores a plan posted by the plan generator. Without an explicit
// score the day's check-in provides it; the mode defaults to the one the
// score selects.
func (h *Handler) createPlan(c *gin.Context) {
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req planRequest
	if err := h.Validator.Decode(validation.Plan, raw, &req); err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	day, err := requestDay(req.Date, h.Now(), user.Location())
	if err != nil {
		h.fail(c, err)
		return
	}

	var score int
	if req.CapacityScore != nil {
		score = *req.CapacityScore
	} else {
		checkIn, err := h.Store.GetCheckIn(ctx, user.ID, day)
		if isNotFound(err) {
			h.fail(c, apperr.Validation("capacity_score", "required when there is no check-in for %s", day.Format(dateLayout)))
			return
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		score = checkIn.CapacityScore
	}
	mode := req.Mode
	if mode == "" {
		mode = capacity.ModeFor(score)
	}

	plan := &models.DailyPlan{
		UserID:        user.ID,
		Date:          day,
		CapacityScore: score,
		Mode:          mode,
		Reasoning:     req.Reasoning,
		WindowEnd:     req.WindowEnd,
	}
	for i, t := range req.Tasks {
		task, err := newTask(i, t)
		if err != nil {
			h.fail(c, err)
			return
		}
		plan.Tasks = append(plan.Tasks, task)
	}

	if err := h.Store.CreatePlan(ctx, plan); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPlanView(plan))
}

func newTask(position int, t taskRequest) (models.PlanTask, error) {
	priority := t.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if (t.ScheduledStart == nil) != (t.ScheduledEnd == nil) {
		return models.PlanTask{}, apperr.Validation("tasks", "task %d: scheduled_start and scheduled_end go together", position)
	}
	if t.ScheduledStart != nil && !t.ScheduledEnd.After(*t.ScheduledStart) {
		return models.PlanTask{}, apperr.Validation("tasks", "task %d: scheduled_end must be after scheduled_start", position)
	}
	return models.PlanTask{
		Position:         position,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         priority,
		EstimatedMinutes: t.EstimatedMinutes,
		ScheduledStart:   t.ScheduledStart,
		ScheduledEnd:     t.ScheduledEnd,
		ExternalID:       t.ExternalID,
		GoalID:           t.GoalID,
	}, nil
}

func (h *Handler) getTodayPlan(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	plan, err := h.Store.CurrentPlan(c.Request.Context(), user.ID, models.DayKey(h.Now(), user.Location()))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPlanView(plan))
}

func (h *Handler) getPlan(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPlanView(plan))
}

func (h *Handler) getPlanProgress(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap, err := h.Progress.GetProgressSummary(c.Request.Context(), plan.ID, h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getProgressHistory(c *gin.Context) {
	days, err := intQuery(c, "days", 7, 1, 90)
	if err != nil {
		h.fail(c, err)
		return
	}
	history, err := h.Progress.GetProgressHistory(c.Request.Context(), auth.UserID(c), days, h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": history})
}
