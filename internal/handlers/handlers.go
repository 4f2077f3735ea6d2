// CodeLab API handlers
// REST surface over the coordinator, grader, snapshot engine and monitoring
// pipeline

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"codelab/internal/activity"
	"codelab/internal/analytics"
	"codelab/internal/apperr"
	"codelab/internal/auth"
	"codelab/internal/fabric"
	"codelab/internal/grading"
	"codelab/internal/labsession"
	"codelab/internal/monitoring"
	"codelab/internal/snapshot"
)

// Handler bundles the service dependencies for the API surface.
type Handler struct {
	Auth       *auth.Service
	Sessions   *labsession.Coordinator
	Activities *activity.Service
	Snapshots  *snapshot.Engine
	Grader     *grading.Grader
	Monitoring *monitoring.Pipeline
	Analytics  *analytics.Service
	Hub        *fabric.Hub
}

func New(authSvc *auth.Service, sessions *labsession.Coordinator, activities *activity.Service,
	snapshots *snapshot.Engine, grader *grading.Grader, pipeline *monitoring.Pipeline,
	analyticsSvc *analytics.Service, hub *fabric.Hub) *Handler {
	return &Handler{
		Auth:       authSvc,
		Sessions:   sessions,
		Activities: activities,
		Snapshots:  snapshots,
		Grader:     grader,
		Monitoring: pipeline,
		Analytics:  analyticsSvc,
		Hub:        hub,
	}
}

// StandardResponse is the envelope of every API response.
type StandardResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: data})
}

func okMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{Success: true, Message: message, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, StandardResponse{Success: true, Data: data})
}

// fail maps a service error to its HTTP status and envelope.
func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), StandardResponse{
		Success: false,
		Error:   apperr.Message(err),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, StandardResponse{Success: false, Error: msg})
}

// idParam parses a uint path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
