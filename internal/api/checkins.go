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

const dateLayout = "2006-01-02"

type userView struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Timezone      string     `json:"timezone"`
	CapacityBias  float64    `json:"capacity_bias"`
	BiasSamples   int        `json:"bias_samples"`
	BiasUpdatedAt *time.Time `json:"bias_updated_at,omitempty"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Timezone:      u.Location().String(),
		CapacityBias:  u.CapacityBias,
		BiasSamples:   u.BiasSamples,
		BiasUpdatedAt: u.BiasUpdatedAt,
	}
}

func (h *Handler) getMe(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

func (h *Handler) updateMe(c *gin.Context) {
	var req struct {
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("body", "%v", err))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil || req.Timezone == "" {
		h.fail(c, apperr.Validation("timezone", "unknown IANA timezone %q", req.Timezone))
		return
	}
	ctx := c.Request.Context()
	if err := h.Store.UpdateTimezone(ctx, auth.UserID(c), req.Timezone); err != nil {
		h.fail(c, err)
		return
	}
	h.getMe(c)
}

type checkInRequest struct {
	EnergyLevel  int         `json:"energy_level"`
	SleepQuality int         `json:"sleep_quality"`
	StressLevel  int         `json:"stress_level"`
	Mood         models.Mood `json:"mood"`
	Notes        string      `json:"notes"`
	Date         string      `json:"date"`
}

// createCheckIn scores the self-assessment and stores it under the user's
// day key, replacing an earlier check-in of the same day. The response also
// carries the learned correction for the score.
func (h *Handler) createCheckIn(c *gin.Context) {
	raw, err := body(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req checkInRequest
	if err := h.Validator.Decode(validation.CheckIn, raw, &req); err != nil {
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
	day, err := requestDay(req.Date, now, user.Location())
	if err != nil {
		h.fail(c, err)
		return
	}

	in := capacity.Input{
		EnergyLevel:  req.EnergyLevel,
		SleepQuality: req.SleepQuality,
		StressLevel:  req.StressLevel,
		Mood:         req.Mood,
	}
	if err := in.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	score, mode := capacity.ScoreInput(in)

	checkIn := &models.CheckIn{
		UserID:        user.ID,
		Date:          day,
		EnergyLevel:   in.EnergyLevel,
		SleepQuality:  in.SleepQuality,
		StressLevel:   in.StressLevel,
		Mood:          in.Mood,
		CapacityScore: score,
		Mode:          mode,
		Notes:         req.Notes,
	}
	if err := h.Store.UpsertCheckIn(ctx, checkIn); err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{"check_in": checkIn}
	adj, err := h.Adjuster.AdjustCapacityScore(ctx, user.ID, score, now)
	if err != nil {
		h.Logger.Warn("Capacity adjustment unavailable", "user_id", user.ID, "error", err)
	} else {
		resp["adjustment"] = adj
	}
	c.JSON(http.StatusCreated, resp)
}

// requestDay resolves an optional YYYY-MM-DD date to a day key, defaulting
// to today in loc. Future days are rejected.
func requestDay(date string, now time.Time, loc *time.Location) (time.Time, error) {
	today := models.DayKey(now, loc)
	if date == "" {
		return today, nil
	}
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, apperr.Validation("date", "must be YYYY-MM-DD")
	}
	if day.After(today) {
		return time.Time{}, apperr.Validation("date", "%s is in the future", date)
	}
	return day, nil
}

func (h *Handler) listCheckIns(c *gin.Context) {
	days, err := intQuery(c, "days", 14, 1, 90)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	today := models.DayKey(h.Now(), user.Location())
	checkIns, err := h.Store.ListCheckIns(c.Request.Context(), user.ID, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"check_ins": checkIns})
}

func (h *Handler) history(c *gin.Context) (*models.User, []models.CheckIn, error) {
	user, err := h.currentUser(c)
	if err != nil {
		return nil, nil, err
	}
	checkIns, err := h.Store.RecentCheckIns(c.Request.Context(), user.ID, patternHistory)
	if err != nil {
		return nil, nil, err
	}
	return user, checkIns, nil
}

func (h *Handler) getPatterns(c *gin.Context) {
	_, history, err := h.history(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Detector.DetectPatterns(history))
}

func (h *Handler) getPrediction(c *gin.Context) {
	user, history, err := h.history(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Detector.PredictCapacity(history, user.CapacityBias))
}

func (h *Handler) getFactors(c *gin.Context) {
	_, history, err := h.history(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Detector.AnalyzeFactors(history))
}
