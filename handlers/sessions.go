package handlers

import (
	"net/http"

	"chat-tools-backend/pipeline"
	"chat-tools-backend/repo"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type postMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostMessage handles POST /api/sessions/:sessionId/messages
func (h *Handlers) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	reply, err := h.Chat.Send(c.Request.Context(), c.Param("sessionId"), req.Message)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// DeleteSession handles DELETE /api/sessions/:sessionId
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("sessionId")
	if err := h.Store.Clear(id); err != nil {
		writeError(c, err, nil)
		return
	}
	if h.Events != nil {
		h.Events.Forget(id)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
}

type pushRequest struct {
	Repository string `json:"repository" binding:"required"`
	Branch     string `json:"branch"`
	Scope      string `json:"scope"`
	Message    string `json:"message"`
}

// PushWorkspace handles POST /api/sessions/:sessionId/push
func (h *Handlers) PushWorkspace(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repository is required"})
		return
	}
	ref, err := repo.ParseRepository(req.Repository)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	id := c.Param("sessionId")
	result, err := h.Pipeline.Run(c.Request.Context(), pipeline.Request{
		SessionID: id,
		Repo:      ref,
		Scope:     req.Scope,
		Branch:    req.Branch,
		Message:   req.Message,
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"session": id, "repo": ref.String()}).Warn("Push failed")
		var extra gin.H
		if result != nil {
			extra = gin.H{"result": result}
		}
		writeError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, result)
}
