package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/models"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/streams"
)

func (h *Handler) analyzePlan(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	analysis, err := h.Engine.AnalyzeProgress(c.Request.Context(), plan.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// reschedulePlan produces a proposal and keeps it until it is applied or
// discarded. strategy=deterministic skips the reasoning collaborator.
func (h *Handler) reschedulePlan(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req struct {
		Instructions    string `json:"instructions"`
		IncludeAccuracy *bool  `json:"include_accuracy"`
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
	var result *reschedule.Result
	switch c.DefaultQuery("strategy", "ai") {
	case "ai":
		opts := reschedule.Options{IncludeAccuracy: true, Instructions: req.Instructions}
		if req.IncludeAccuracy != nil {
			opts.IncludeAccuracy = *req.IncludeAccuracy
		}
		result, err = h.Engine.RescheduleWithAI(ctx, plan.ID, opts)
	case "deterministic":
		result, err = h.Engine.RescheduleAfternoon(ctx, plan.ID)
	default:
		err = apperr.Validation("strategy", "must be ai or deterministic")
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.Proposals.Put(ctx, result); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// pendingProposal loads the proposal named in the body and checks that it
// belongs to the plan.
func (h *Handler) pendingProposal(c *gin.Context, plan *models.DailyPlan, raw []byte) (*reschedule.Result, error) {
	var req struct {
		ProposalID string `json:"proposal_id"`
	}
	if err := bindRaw(raw, &req); err != nil {
		return nil, err
	}
	if req.ProposalID == "" {
		return nil, apperr.Validation("proposal_id", "is required")
	}
	result, err := h.Proposals.Get(c.Request.Context(), req.ProposalID)
	if err != nil {
		return nil, err
	}
	if result.PlanID != plan.ID {
		return nil, apperr.NotFound("proposal", req.ProposalID)
	}
	return result, nil
}

func (h *Handler) applyReschedule(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pending, err := h.pendingProposal(c, plan, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	applied, err := h.Engine.ApplyReschedule(ctx, plan.ID, pending)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Proposals.Delete(ctx, applied.ProposalID); err != nil {
		h.Logger.Warn("Failed to drop applied proposal", "proposal_id", applied.ProposalID, "error", err)
	}

	h.publish(ctx, streams.PlannerEvent{
		Type:       streams.EventRescheduleApplied,
		UserID:     plan.UserID,
		PlanID:     plan.ID,
		ProposalID: applied.ProposalID,
		Source:     string(applied.Source),
		Reason:     applied.Reasoning,
	})
	c.JSON(http.StatusOK, applied)
}

func (h *Handler) discardReschedule(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pending, err := h.pendingProposal(c, plan, raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	discarded, err := h.Engine.Discard(pending)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Proposals.Delete(c.Request.Context(), discarded.ProposalID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, discarded)
}

func (h *Handler) listReschedules(c *gin.Context) {
	plan, err := h.ownedPlan(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	events, err := h.Store.RescheduleEvents(c.Request.Context(), plan.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
