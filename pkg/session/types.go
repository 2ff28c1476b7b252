// Package session tracks the lifecycle of admitted requests: identity,
// status, and timing. Sessions are kept for a grace period after they finish
// so citation lookups and status queries keep working.
package session

import (
	"time"

	"github.com/medrag/deepquery/pkg/models"
)

// Status is the lifecycle state of a session. It only ever advances.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// StatusForTerminalEvent maps a terminal stream event type to the session
// status it implies.
func StatusForTerminalEvent(eventType string) Status {
	switch eventType {
	case models.EventTypeFinalAnswer, models.EventTypeNoAnswer:
		return StatusCompleted
	case models.EventTypeCancelled:
		return StatusCancelled
	case models.EventTypeTimeout:
		return StatusTimedOut
	default:
		return StatusFailed
	}
}

// Session is one admitted request.
type Session struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Clone returns a copy safe to hand out without holding the manager lock.
func (s *Session) Clone() *Session {
	cp := *s
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return &cp
}
