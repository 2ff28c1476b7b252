// Package citations keeps the evidence behind final answers available for
// detail lookups after the stream has ended. Entries live for a TTL after
// their session finishes; eviction is lazy on access plus a periodic sweep.
package citations

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
)

// ErrCitationNotFound is returned for unknown or expired citations.
var ErrCitationNotFound = errors.New("citation not found")

type sessionEntry struct {
	records  map[int]models.Evidence
	storedAt time.Time

	// expiresAt is zero until the session reaches a terminal state.
	expiresAt time.Time
}

// Store is the process-wide citation mapping.
type Store struct {
	mu       sync.Mutex
	cfg      *config.CitationConfig
	sessions map[string]*sessionEntry
	stop     chan struct{}
	done     chan struct{}
	logger   *slog.Logger
}

// NewStore builds the citation store.
func NewStore(cfg *config.CitationConfig, logger *slog.Logger) *Store {
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*sessionEntry),
		logger:   logger.With("component", "citations"),
	}
}

// Put deposits the numbered evidence for a session. It happens at most once
// per session, when the final answer is assembled.
func (s *Store) Put(sessionID string, evidence []models.Evidence) {
	records := make(map[int]models.Evidence, len(evidence))
	for _, ev := range evidence {
		records[ev.ID] = ev
	}
	s.mu.Lock()
	s.sessions[sessionID] = &sessionEntry{records: records, storedAt: time.Now()}
	s.mu.Unlock()
	s.logger.Info("citations stored", "session_id", sessionID, "count", len(records))
}

// MarkTerminal starts the TTL clock for a session's citations.
func (s *Store) MarkTerminal(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.sessions[sessionID]; ok && entry.expiresAt.IsZero() {
		entry.expiresAt = time.Now().Add(s.cfg.TTL)
	}
}

// Get resolves one citation within a session, evicting lazily when the
// entry has expired.
func (s *Store) Get(sessionID string, citationID int) (models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return models.Evidence{}, ErrCitationNotFound
	}
	if entry.expired(time.Now()) {
		delete(s.sessions, sessionID)
		return models.Evidence{}, ErrCitationNotFound
	}
	ev, ok := entry.records[citationID]
	if !ok {
		return models.Evidence{}, ErrCitationNotFound
	}
	return ev, nil
}

// Lookup resolves a citation without a session: the most recently stored
// live entry holding the ID wins. The citation detail endpoint uses this
// when the client does not echo its session.
func (s *Store) Lookup(citationID int) (models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var best models.Evidence
	var bestAt time.Time
	found := false
	for id, entry := range s.sessions {
		if entry.expired(now) {
			delete(s.sessions, id)
			continue
		}
		ev, ok := entry.records[citationID]
		if ok && (!found || entry.storedAt.After(bestAt)) {
			best = ev
			bestAt = entry.storedAt
			found = true
		}
	}
	if !found {
		return models.Evidence{}, ErrCitationNotFound
	}
	return best, nil
}

func (e *sessionEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Start launches the background sweeper.
func (s *Store) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Info("citation sweeper started", "interval", s.cfg.SweepInterval)
}

// Stop halts the sweeper and waits for it to exit.
func (s *Store) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if entry.expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept expired citations", "sessions_removed", removed)
	}
	return removed
}
