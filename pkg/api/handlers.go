package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medrag/deepquery/pkg/models"
	"github.com/medrag/deepquery/pkg/pipeline"
)

// ChatStream handles POST /chat/stream. The response is a server-sent event
// stream: one "data: <json>\n\n" frame per event, HTTP 200 on every path so
// intermediate proxies never truncate an in-band failure.
func (s *Server) ChatStream(c *gin.Context) {
	var q pipeline.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	// The request context cancels on client disconnect; the pipeline's
	// checkpoints turn that into a cancelled terminal.
	events := s.pipeline.Process(c.Request.Context(), &q)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("event marshal failed", "error", err, "type", ev.Type)
			continue
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			// Client is gone; keep draining so the pipeline can finish.
			continue
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// Chat handles POST /chat: the collected, non-streaming debug variant. All
// events are gathered and returned as one JSON document.
func (s *Server) Chat(c *gin.Context) {
	var q pipeline.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var collected []*models.StreamEvent
	for ev := range s.pipeline.Process(c.Request.Context(), &q) {
		collected = append(collected, ev)
	}

	sessionID := ""
	if len(collected) > 0 {
		sessionID = collected[0].SessionID
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":   sessionID,
		"events":       collected,
		"total_events": len(collected),
	})
}

// GetCitation handles GET /citation/:id. An optional session_id query
// parameter scopes the lookup; without it the most recent live session
// holding the ID wins.
func (s *Server) GetCitation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "citation id must be a positive integer"})
		return
	}

	var ev models.Evidence
	if sessionID := c.Query("session_id"); sessionID != "" {
		ev, err = s.citations.Get(sessionID, id)
	} else {
		ev, err = s.citations.Lookup(id)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "citation not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           ev.ID,
		"full_content": ev.Content,
	})
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"max_concurrent":   s.pipeline.MaxConcurrent(),
		"available_slots":  s.pipeline.AvailableSlots(),
		"processing_count": s.sessions.ProcessingCount(),
		"active_sessions":  len(s.sessions.Snapshot()),
	})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.Snapshot())
}
