package handlers

import (
	"github.com/gin-gonic/gin"

	"codelab/internal/middleware"
)

// AnalyticsOverview returns the all-time platform summary.
func (h *Handler) AnalyticsOverview(c *gin.Context) {
	overview, err := h.Analytics.Overview()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, overview)
}

// AnalyticsLive returns the cached now-on-the-platform snapshot.
func (h *Handler) AnalyticsLive(c *gin.Context) {
	view, err := h.Analytics.Live(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

// AnalyticsSession returns the per-student breakdown of one lab session.
func (h *Handler) AnalyticsSession(c *gin.Context) {
	sessionID, okID := idParam(c, "sessionId")
	if !okID {
		return
	}
	view, err := h.Analytics.Session(sessionID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}
