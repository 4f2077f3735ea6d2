package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codelab/internal/apperr"
	"codelab/internal/labsession"
	"codelab/internal/middleware"
)

// ListLabSessions returns the sessions visible to the caller.
func (h *Handler) ListLabSessions(c *gin.Context) {
	sessions, err := h.Sessions.List(middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sessions)
}

// CreateLabSession creates a session owned by the calling instructor.
func (h *Handler) CreateLabSession(c *gin.Context) {
	var in labsession.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	session, err := h.Sessions.Create(middleware.UserID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, session)
}

// GetLabSession returns one hydrated session, role-gated.
func (h *Handler) GetLabSession(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	session, err := h.Sessions.Get(id, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, session)
}

// UpdateLabSession patches a session the caller owns.
func (h *Handler) UpdateLabSession(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	var in labsession.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	session, err := h.Sessions.Update(id, middleware.UserID(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lab session updated", session)
}

// DeleteLabSession cascade-deletes a session the caller owns.
func (h *Handler) DeleteLabSession(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	if err := h.Sessions.Delete(id, middleware.UserID(c)); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lab session deleted", nil)
}

// ActivateLabSession opens a session to its enrolled students.
func (h *Handler) ActivateLabSession(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	session, err := h.Sessions.Activate(id, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lab session activated", session)
}

// DeactivateLabSession closes a session to students.
func (h *Handler) DeactivateLabSession(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	session, err := h.Sessions.Deactivate(id, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lab session deactivated", session)
}

// AvailableStudents lists cohort-matching students not yet enrolled.
func (h *Handler) AvailableStudents(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	students, err := h.Sessions.AvailableStudents(id, middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, students)
}

// AddStudents enrolls students; partial failures are returned alongside the
// added count rather than failing the whole request.
func (h *Handler) AddStudents(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	var in labsession.AddStudentsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	result, err := h.Sessions.AddStudents(id, middleware.UserID(c), in)
	if err != nil {
		// All-fail keeps the partition in the response body.
		if result != nil {
			c.JSON(apperr.HTTPStatus(err), StandardResponse{
				Success: false,
				Error:   apperr.Message(err),
				Data:    result,
			})
			return
		}
		fail(c, err)
		return
	}
	ok(c, result)
}

// RemoveStudent drops one enrollment.
func (h *Handler) RemoveStudent(c *gin.Context) {
	id, okID := idParam(c, "id")
	if !okID {
		return
	}
	studentID, okID := idParam(c, "studentId")
	if !okID {
		return
	}
	if err := h.Sessions.RemoveStudent(id, middleware.UserID(c), studentID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Message: "student removed"})
}
