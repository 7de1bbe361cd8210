package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/auth"
	"github.com/jimdaga/capacity-planner/internal/trackersync"
	"github.com/jimdaga/capacity-planner/internal/validation"
)

func (h *Handler) connectTracker(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	var req struct {
		AccessToken string `json:"access_token"`
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
	if req.AccessToken == "" {
		h.fail(c, apperr.Validation("access_token", "is required"))
		return
	}

	conn, err := h.Store.UpsertTrackerConnection(c.Request.Context(), auth.UserID(c), provider, req.AccessToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":       conn.Provider,
		"connected":      true,
		"last_synced_at": conn.LastSyncedAt,
	})
}

// syncTracker reconciles a batch of remote task changes posted by a tracker
// bridge. Events without a provider take the provider query parameter.
func (h *Handler) syncTracker(c *gin.Context) {
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req struct {
		Events []trackersync.Event `json:"events"`
	}
	if err := h.Validator.Decode(validation.TrackerEvents, raw, &req); err != nil {
		h.fail(c, err)
		return
	}
	if provider := c.Query("provider"); provider != "" {
		for i := range req.Events {
			if req.Events[i].Provider == "" {
				req.Events[i].Provider = provider
			}
		}
	}

	report, err := h.Reconciler.Apply(c.Request.Context(), auth.UserID(c), req.Events)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
