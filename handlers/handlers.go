// Package handlers exposes sessions over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"regexp"

	"chat-tools-backend/chat"
	"chat-tools-backend/logging"
	"chat-tools-backend/pipeline"
	"chat-tools-backend/retry"
	"chat-tools-backend/session"
	"chat-tools-backend/types"
	"chat-tools-backend/workspace"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logging.NewLogger("handlers")

// Events receives session lifecycle notifications. *websocket.SessionHub implements it.
type Events interface {
	Forget(sessionID string)
}

// Handlers serves the session API.
type Handlers struct {
	Store    *session.Store
	Chat     *chat.Dispatcher
	Pipeline *pipeline.Pipeline
	Events   Events
}

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSessionID rejects malformed :sessionId parameters before any handler runs.
func ValidateSessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionIDRegex.MatchString(c.Param("sessionId")) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		c.Next()
	}
}

// Health returns a simple health check handler
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	var apiErr *types.APIError
	switch {
	case types.IsValidation(err), errors.Is(err, workspace.ErrOutsideWorkspace):
		return http.StatusBadRequest
	case retry.IsExhausted(err):
		return http.StatusConflict
	case types.IsNotFound(err), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError sends {"error": ...}. Unclassified errors are logged and reported
// generically.
func writeError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{"path": c.FullPath(), "session": c.Param("sessionId")}).Error("Request failed")
		body["error"] = "internal server error"
	}
	var apiErr *types.APIError
	if errors.As(err, &apiErr) && apiErr.Remediation != "" {
		body["remediation"] = apiErr.Remediation
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}
