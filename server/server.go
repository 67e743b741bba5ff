// Package server provides HTTP server setup, middleware, and routing configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chat-tools-backend/handlers"
	"chat-tools-backend/logging"
	"chat-tools-backend/metrics"
	"chat-tools-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var log = logging.NewLogger("server")

const shutdownTimeout = 15 * time.Second

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(h *handlers.Handlers, hub *websocket.SessionHub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithFormatter(requestLogFormatter))

	// Middleware to populate user context from forwarded headers
	r.Use(forwardedIdentityMiddleware())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		sessions := api.Group("/sessions/:sessionId", handlers.ValidateSessionID())
		{
			sessions.DELETE("", h.DeleteSession)
			sessions.POST("/messages", h.PostMessage)
			sessions.POST("/push", h.PushWorkspace)
			sessions.GET("/workspace", h.ListWorkspace)
			sessions.GET("/workspace/*path", h.GetWorkspaceFile)
			sessions.PUT("/workspace/*path", h.PutWorkspaceFile)
			sessions.GET("/events", hub.HandleSessionWebSocket)
		}
	}
	return r
}

// requestLogFormatter writes one line per request with tokens removed from the path.
func requestLogFormatter(param gin.LogFormatterParams) string {
	user := "-"
	if v, ok := param.Keys["userID"].(string); ok && v != "" {
		user = v
	}
	return fmt.Sprintf("[GIN] %s | %3d | %s | %s | %s | %s\n",
		param.Method,
		param.StatusCode,
		param.Latency,
		param.ClientIP,
		user,
		logging.Redact(param.Path),
	)
}

// forwardedIdentityMiddleware populates Gin context from common OAuth proxy headers.
func forwardedIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-Forwarded-User"); v != "" {
			c.Set("userID", v)
		}
		// Prefer preferred username; fallback to user id
		name := c.GetHeader("X-Forwarded-Preferred-Username")
		if name == "" {
			name = c.GetHeader("X-Forwarded-User")
		}
		if name != "" {
			c.Set("userName", name)
		}
		if v := c.GetHeader("X-Forwarded-Email"); v != "" {
			c.Set("userEmail", v)
		}
		if v := c.GetHeader("X-Forwarded-Groups"); v != "" {
			c.Set("userGroups", strings.Split(v, ","))
		}
		c.Next()
	}
}

// Run serves handler on port until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
