package handlers

import (
	"github.com/gin-gonic/gin"

	"codelab/internal/auth"
	"codelab/internal/middleware"
)

// Register creates a user account and returns a token.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	result, err := h.Auth.Register(&req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, result)
}

// Login exchanges credentials for a token.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	result, err := h.Auth.Login(&req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

// Me returns the authenticated user.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.Auth.GetUser(middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

// UpdateProfile patches the authenticated user's profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var patch auth.ProfileUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request format")
		return
	}
	user, err := h.Auth.UpdateProfile(middleware.UserID(c), &patch)
	if err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "profile updated", user)
}
