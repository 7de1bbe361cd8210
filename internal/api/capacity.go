package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/auth"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/momentum"
)

func (h *Handler) getMomentum(c *gin.Context) {
	m, err := h.Momentum.Calculate(c.Request.Context(), auth.UserID(c), h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"momentum": m, "message": momentum.DisplayMessage(m)})
}

func (h *Handler) getMomentumHistory(c *gin.Context) {
	log, err := h.Momentum.History(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if log == nil {
		log = models.MomentumLog{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": log})
}

// adjustCapacity returns the learned correction for a reported score, or for
// today's check-in score when none is given.
func (h *Handler) adjustCapacity(c *gin.Context) {
	var req struct {
		ReportedScore *int `json:"reported_score"`
	}
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := bindRaw(raw, &req); err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.Now()

	var score int
	if req.ReportedScore != nil {
		score = *req.ReportedScore
	} else {
		checkIn, err := h.Store.GetCheckIn(ctx, user.ID, models.DayKey(now, user.Location()))
		if isNotFound(err) {
			h.fail(c, apperr.Validation("reported_score", "required when there is no check-in today"))
			return
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		score = checkIn.CapacityScore
	}

	adj, err := h.Adjuster.AdjustCapacityScore(ctx, user.ID, score, now)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}

func (h *Handler) getCapacityInsights(c *gin.Context) {
	insights, err := h.Adjuster.GetCapacityInsights(c.Request.Context(), auth.UserID(c), h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}
