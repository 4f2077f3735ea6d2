package handlers

import (
	"github.com/gin-gonic/gin"

	"codelab/internal/middleware"
	"codelab/internal/monitoring"
)

// StartMonitoring opens a monitoring window for the caller on an activity.
func (h *Handler) StartMonitoring(c *gin.Context) {
	var req struct {
		ActivityID   uint `json:"activityId" binding:"required"`
		LabSessionID uint `json:"labSessionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	session, err := h.Monitoring.Start(middleware.UserID(c), req.ActivityID, req.LabSessionID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gin.H{"monitoringId": session.MonitoringID})
}

// IngestMonitoringEvents processes one client-flushed batch in array order.
func (h *Handler) IngestMonitoringEvents(c *gin.Context) {
	var req struct {
		MonitoringID string                     `json:"monitoringId" binding:"required"`
		Events       []monitoring.IncomingEvent `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	session, err := h.Monitoring.Ingest(req.MonitoringID, req.Events)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, session)
}

// EndMonitoring finalizes a window and returns its summary.
func (h *Handler) EndMonitoring(c *gin.Context) {
	var req struct {
		MonitoringID    string `json:"monitoringId" binding:"required"`
		TotalActiveTime int64  `json:"totalActiveTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	summary, err := h.Monitoring.End(req.MonitoringID, req.TotalActiveTime)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, summary)
}
