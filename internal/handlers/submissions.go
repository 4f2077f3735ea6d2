package handlers

import (
	"github.com/gin-gonic/gin"

	"codelab/internal/grading"
	"codelab/internal/middleware"
)

// Submit grades the caller's code against the activity's test cases.
func (h *Handler) Submit(c *gin.Context) {
	var in grading.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	sub, err := h.Grader.Submit(c.Request.Context(), middleware.UserID(c), middleware.UserName(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, sub)
}

// MySubmissions lists the caller's submissions, most recent first.
func (h *Handler) MySubmissions(c *gin.Context) {
	subs, err := h.Grader.My(middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, subs)
}

// ActivitySubmissions lists an activity's submissions for its instructor.
func (h *Handler) ActivitySubmissions(c *gin.Context) {
	activityID, okID := idParam(c, "activityId")
	if !okID {
		return
	}
	subs, err := h.Grader.ForActivity(activityID, middleware.UserID(c), middleware.Role(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, subs)
}

// SubmissionStats summarizes the caller's submission history.
func (h *Handler) SubmissionStats(c *gin.Context) {
	stats, err := h.Grader.StatsFor(middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}
