// Package httpapi is the reference host's single HTTP entrypoint: a gin
// handler that runs the user-creation saga and maps its outcome to a
// response.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sagaflow/engine"
)

// CreateUserRequest is the request body for POST /users.
type CreateUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

// SagaRunner builds and executes the user-creation saga for a single
// request. The reference host's cmd/sagaflow wires a concrete
// implementation; httpapi only depends on this narrow seam so the handler
// can be tested without a real engine.Engine.
type SagaRunner func(req CreateUserRequest) (any, error)

// NewRouter builds a gin.Engine exposing POST /users, running runner per
// request and mapping the orchestrator's error taxonomy to an HTTP status.
// Mapping the taxonomy to a status is explicitly host-side: the engine
// itself never knows about HTTP (spec.md §1's "error taxonomy of the host
// application" boundary).
func NewRouter(runner SagaRunner, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/users", func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
			return
		}

		result, err := runner(req)
		if err != nil {
			logger.Error("user creation saga failed", "error", err)
			status, body := mapSagaError(err)
			c.JSON(status, body)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"result": result})
	})

	return router
}

// mapSagaError picks an HTTP status for a saga failure by inspecting the
// orchestrator's closed error taxonomy, most specific first.
func mapSagaError(err error) (int, gin.H) {
	var critical *engine.CriticalStepError
	if errors.As(err, &critical) {
		return http.StatusInternalServerError, gin.H{
			"message": "critical step failed: " + critical.Error(),
		}
	}

	var timeout *engine.StepTimeoutError
	if errors.As(err, &timeout) {
		return http.StatusGatewayTimeout, gin.H{
			"message": "step timed out: " + timeout.Error(),
		}
	}

	var interrupted *engine.WorkflowInterruptedError
	if errors.As(err, &interrupted) {
		return http.StatusServiceUnavailable, gin.H{
			"message": "workflow interrupted: " + interrupted.Error(),
		}
	}

	var compFailed *engine.CompensationFailedError
	if errors.As(err, &compFailed) {
		return http.StatusInternalServerError, gin.H{
			"message": "compensation failed, manual intervention required: " + compFailed.Error(),
		}
	}

	var wfFailed *engine.WorkflowFailedError
	if errors.As(err, &wfFailed) {
		return http.StatusUnprocessableEntity, gin.H{
			"message": "workflow failed: " + wfFailed.Error(),
		}
	}

	return http.StatusInternalServerError, gin.H{"message": "internal error: " + err.Error()}
}
