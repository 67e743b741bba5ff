package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/types"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds a single staged file.
const maxUploadBytes = 10 << 20

// ListWorkspace handles GET /api/sessions/:sessionId/workspace
func (h *Handlers) ListWorkspace(c *gin.Context) {
	id := c.Param("sessionId")
	seq, err := h.Store.Workspaces().Enumerate(id)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	items := []string{}
	for p, err := range seq {
		if err != nil {
			writeError(c, err, nil)
			return
		}
		items = append(items, p)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func workspacePath(c *gin.Context) (string, error) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	if p == "" {
		return "", &types.ValidationError{Field: "path", Message: "is required"}
	}
	return p, nil
}

// GetWorkspaceFile handles GET /api/sessions/:sessionId/workspace/*path
func (h *Handlers) GetWorkspaceFile(c *gin.Context) {
	rel, err := workspacePath(c)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	data, err := h.Store.Workspaces().ReadFile(c.Param("sessionId"), rel)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// PutWorkspaceFile handles PUT /api/sessions/:sessionId/workspace/*path. The raw body
// becomes the file content.
func (h *Handlers) PutWorkspaceFile(c *gin.Context) {
	rel, err := workspacePath(c)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	id := c.Param("sessionId")
	if _, err := h.Store.GetOrCreate(id); err != nil {
		writeError(c, err, nil)
		return
	}
	release := h.Store.Locks().Acquire(keyedlock.Key(id, "file", rel))
	defer release()
	if _, err := h.Store.Workspaces().WriteFile(id, rel, data); err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": rel, "bytes": len(data)})
}
