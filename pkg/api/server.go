// Package api is the gin HTTP surface: the SSE chat stream, its collected
// debug variant, citation lookup, and the health and session endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medrag/deepquery/pkg/citations"
	"github.com/medrag/deepquery/pkg/pipeline"
	"github.com/medrag/deepquery/pkg/session"
)

// Server wires the HTTP handlers to the pipeline and the stores behind it.
type Server struct {
	pipeline  *pipeline.Pipeline
	sessions  *session.Manager
	citations *citations.Store
	logger    *slog.Logger

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(p *pipeline.Pipeline, sessions *session.Manager, store *citations.Store, logger *slog.Logger) *Server {
	return &Server{
		pipeline:  p,
		sessions:  sessions,
		citations: store,
		logger:    logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.POST("/chat/stream", s.ChatStream)
	r.POST("/chat", s.Chat)
	r.GET("/citation/:id", s.GetCitation)
	r.GET("/health", s.Health)
	r.GET("/sessions", s.ListSessions)
	return r
}

// Start begins serving on addr. Blocks until the listener fails or the
// server is shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows the browser client to call from any origin. The
// service carries no cookie auth, so a wildcard is safe.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
