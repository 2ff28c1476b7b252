package citations

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
)

func newTestStore(ttl time.Duration) *Store {
	cfg := config.DefaultCitationConfig()
	cfg.TTL = ttl
	return NewStore(cfg, slog.New(slog.DiscardHandler))
}

func sampleEvidence() []models.Evidence {
	return []models.Evidence{
		{ID: 1, Title: "Doc A", Content: "full content of doc A"},
		{ID: 2, Title: "Doc B", Content: "full content of doc B"},
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(time.Hour)
	s.Put("sess", sampleEvidence())

	ev, err := s.Get("sess", 1)
	require.NoError(t, err)
	assert.Equal(t, "full content of doc A", ev.Content)

	_, err = s.Get("sess", 99)
	assert.ErrorIs(t, err, ErrCitationNotFound)

	_, err = s.Get("other", 1)
	assert.ErrorIs(t, err, ErrCitationNotFound)
}

func TestGetRepeatable(t *testing.T) {
	s := newTestStore(time.Hour)
	s.Put("sess", sampleEvidence())

	first, err := s.Get("sess", 2)
	require.NoError(t, err)
	second, err := s.Get("sess", 2)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
}

func TestLazyExpiry(t *testing.T) {
	s := newTestStore(time.Millisecond)
	s.Put("sess", sampleEvidence())

	// TTL only starts once the session is terminal.
	s.MarkTerminal("sess")
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get("sess", 1)
	assert.ErrorIs(t, err, ErrCitationNotFound)
}

func TestNoExpiryWhileSessionLive(t *testing.T) {
	s := newTestStore(time.Millisecond)
	s.Put("sess", sampleEvidence())
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get("sess", 1)
	assert.NoError(t, err)
}

func TestLookupPrefersNewestSession(t *testing.T) {
	s := newTestStore(time.Hour)
	s.Put("old", []models.Evidence{{ID: 1, Title: "Old", Content: "old content"}})
	time.Sleep(2 * time.Millisecond)
	s.Put("new", []models.Evidence{{ID: 1, Title: "New", Content: "new content"}})

	ev, err := s.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "new content", ev.Content)

	_, err = s.Lookup(42)
	assert.ErrorIs(t, err, ErrCitationNotFound)
}

func TestSweep(t *testing.T) {
	s := newTestStore(time.Millisecond)
	s.Put("a", sampleEvidence())
	s.Put("b", sampleEvidence())
	s.MarkTerminal("a")

	removed := s.sweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, removed)

	_, err := s.Get("a", 1)
	assert.ErrorIs(t, err, ErrCitationNotFound)
	_, err = s.Get("b", 1)
	assert.NoError(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	cfg := config.DefaultCitationConfig()
	cfg.TTL = time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond
	s := NewStore(cfg, slog.New(slog.DiscardHandler))

	s.Put("sess", sampleEvidence())
	s.MarkTerminal("sess")
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, err := s.Get("sess", 1)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
