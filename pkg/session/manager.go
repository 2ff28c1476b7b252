package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the guarded active-sessions mapping. The lock is held only for
// O(1) map work, never across a blocking operation.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	grace    time.Duration
	logger   *slog.Logger
}

// NewManager builds the session registry. Finished sessions are retained
// for the grace duration before Sweep removes them.
func NewManager(grace time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		grace:    grace,
		logger:   logger.With("component", "sessions"),
	}
}

// Create registers a new pending session with a fresh UUID.
func (m *Manager) Create(question string) *Session {
	return m.CreateWithID("", question)
}

// CreateWithID registers a session under a caller-supplied ID, so clients can
// correlate the stream with their own identifiers. An empty ID gets a fresh
// UUID.
func (m *Manager) CreateWithID(id, question string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		ID:        id,
		Question:  question,
		Status:    StatusPending,
		StartTime: time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.logger.Info("session created", "session_id", s.ID)
	return s
}

// Get returns a copy of the session, if known.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// SetStatus advances the session's status. Statuses never move backwards;
// a terminal status also stamps the end time.
func (m *Manager) SetStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status.Terminal() {
		return
	}
	s.Status = status
	if status.Terminal() {
		now := time.Now()
		s.EndTime = &now
	}
}

// Snapshot returns copies of all known sessions.
func (m *Manager) Snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// ProcessingCount returns the number of sessions currently processing.
func (m *Manager) ProcessingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusProcessing {
			n++
		}
	}
	return n
}

// Sweep drops sessions that finished more than the grace period ago and
// returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.Status.Terminal() && s.EndTime != nil && now.Sub(*s.EndTime) > m.grace {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept finished sessions", "removed", removed)
	}
	return removed
}
