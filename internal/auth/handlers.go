package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"

	"github.com/jimdaga/capacity-planner/internal/models"
)

// Session keys
const (
	SessionUserID    = "user_id"
	SessionUserEmail = "user_email"
	SessionUserName  = "user_name"
)

// UserUpserter records a login and returns the local user.
type UserUpserter interface {
	UpsertByEmail(ctx context.Context, email, name string, loginAt time.Time) (*models.User, error)
}

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Add("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, upserts the user, and stores the
// local user id in the session
func HandleCallback(users UserUpserter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gothic requires the "provider" query parameter
		q := c.Request.URL.Query()
		q.Add("provider", "google")
		c.Request.URL.RawQuery = q.Encode()

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			slog.Warn("Auth error", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "kind": "unauthorized"})
			return
		}

		login(c, users, gothUser.Email, gothUser.Name)
	}
}

// HandleDevLogin signs in as the given account without OAuth. It is only
// routed outside production.
func HandleDevLogin(users UserUpserter, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		login(c, users, email, "Dev User")
	}
}

func login(c *gin.Context, users UserUpserter, email, name string) {
	user, err := users.UpsertByEmail(c.Request.Context(), email, name, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to upsert user", "email", email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record login", "kind": "internal"})
		return
	}

	// Store user info in session
	session := sessions.Default(c)
	session.Set(SessionUserID, user.ID)
	session.Set(SessionUserEmail, user.Email)
	session.Set(SessionUserName, user.Name)

	if err := session.Save(); err != nil {
		slog.Error("Session save error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session", "kind": "internal"})
		return
	}

	slog.Info("User authenticated", "user_id", user.ID, "email", user.Email)
	c.Redirect(http.StatusFound, "/api/me")
}

// HandleLogout clears the session
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		slog.Error("Session clear error", "error", err)
	}

	c.Status(http.StatusNoContent)
}
