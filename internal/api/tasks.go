package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) startTask(c *gin.Context) {
	id, err := h.ownedTaskID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	task, err := h.Progress.RecordTaskStart(c.Request.Context(), id, h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) completeTask(c *gin.Context) {
	id, err := h.ownedTaskID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	completion, err := h.Progress.RecordTaskCompletion(ctx, id, h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	if !completion.AlreadyCompleted {
		h.scheduleCheck(ctx, completion.Task.PlanID)
	}
	c.JSON(http.StatusOK, completion)
}

func (h *Handler) reopenTask(c *gin.Context) {
	id, err := h.ownedTaskID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	task, err := h.Progress.RecordTaskReopen(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.scheduleCheck(ctx, task.PlanID)
	c.JSON(http.StatusOK, task)
}
