package handlers

import (
	"github.com/gin-gonic/gin"

	"codelab/internal/activity"
	"codelab/internal/apperr"
	"codelab/internal/fabric"
	"codelab/internal/middleware"
	"codelab/internal/snapshot"
	"codelab/pkg/models"
)

// CreateActivity adds an activity to a session the caller owns.
func (h *Handler) CreateActivity(c *gin.Context) {
	sessionID, okID := idParam(c, "id")
	if !okID {
		return
	}
	var in activity.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	act, err := h.Activities.Create(sessionID, middleware.UserID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, act)
}

// ListActivities returns a session's activities in order.
func (h *Handler) ListActivities(c *gin.Context) {
	sessionID, okID := idParam(c, "id")
	if !okID {
		return
	}
	activities, err := h.Activities.ListForSession(sessionID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, activities)
}

// GetActivity returns one activity, hidden fixtures stripped for students.
func (h *Handler) GetActivity(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	act, err := h.Activities.Get(id, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, act)
}

// UpdateActivity patches an activity in a session the caller owns.
func (h *Handler) UpdateActivity(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	var in activity.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	act, err := h.Activities.Update(id, middleware.UserID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "activity updated", act)
}

// DeleteActivity retires an activity.
func (h *Handler) DeleteActivity(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	if err := h.Activities.Delete(id, middleware.UserID(c)); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "activity deleted", nil)
}

// draftRequest is the draft upsert payload.
type draftRequest struct {
	Code string `json:"code"`
}

// SaveDraft upserts the caller's draft for an activity.
func (h *Handler) SaveDraft(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	act, err := h.Activities.Get(activityID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	draft, err := h.Snapshots.SaveDraft(middleware.UserID(c), activityID, act.LabSessionID, req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, draft)
}

// GetDraft returns the caller's draft for an activity, if one exists.
func (h *Handler) GetDraft(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	draft, err := h.Snapshots.GetDraft(middleware.UserID(c), activityID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, draft)
}

// ClearDraft deletes the caller's draft for an activity.
func (h *Handler) ClearDraft(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	if err := h.Snapshots.ClearDraft(middleware.UserID(c), activityID); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "draft cleared", nil)
}

// snapshotRequest is the autosave snapshot payload.
type snapshotRequest struct {
	Code              string                    `json:"code"`
	Type              string                    `json:"type"`
	BehavioralContext *models.BehavioralContext `json:"behavioralContext"`
}

// CreateSnapshot records a non-draft snapshot for the caller.
func (h *Handler) CreateSnapshot(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	if req.Type == "" {
		req.Type = models.SnapshotAuto
	}
	act, err := h.Activities.Get(activityID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	snap, err := h.Snapshots.Create(snapshot.CreateInput{
		StudentID:         middleware.UserID(c),
		ActivityID:        act.ID,
		LabSessionID:      act.LabSessionID,
		Code:              req.Code,
		Type:              req.Type,
		BehavioralContext: req.BehavioralContext,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, snap)
}

// SnapshotHistory returns the caller's snapshot sequence for an activity.
func (h *Handler) SnapshotHistory(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	snaps, err := h.Snapshots.History(middleware.UserID(c), activityID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, snaps)
}

// ClassifyRevisions returns the revision-pattern classification for one
// student on one activity. Instructors may inspect any student.
func (h *Handler) ClassifyRevisions(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	studentID := middleware.UserID(c)
	if middleware.Role(c) != models.RoleStudent {
		if sid, okID := idParam(c, "studentId"); okID {
			studentID = sid
		} else {
			return
		}
	}
	classification, err := h.Snapshots.ClassifyRevisions(studentID, activityID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, classification)
}

// RequestHint notifies instructors that a student asked for a hint.
// Lockdown activities (assist level 0) reject the request.
func (h *Handler) RequestHint(c *gin.Context) {
	activityID, okID := idParam(c, "id")
	if !okID {
		return
	}
	act, err := h.Activities.Get(activityID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	if act.AIAssistLevel == 0 {
		fail(c, apperr.Forbidden("hints are disabled for this activity"))
		return
	}

	h.Hub.EmitToLabSession(act.LabSessionID, fabric.EventHintRequested, map[string]interface{}{
		"sessionId":     act.LabSessionID,
		"activityId":    act.ID,
		"activityTitle": act.Title,
		"studentId":     middleware.UserID(c),
		"studentName":   middleware.UserName(c),
		"assistLevel":   act.AIAssistLevel,
	})
	okMessage(c, "hint request sent", nil)
}
