package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrag/deepquery/pkg/agent"
	"github.com/medrag/deepquery/pkg/citations"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
	"github.com/medrag/deepquery/pkg/pipeline"
	"github.com/medrag/deepquery/pkg/session"
)

// answerRunner emits a minimal successful session and deposits one citation.
type answerRunner struct {
	store *citations.Store
}

func (r *answerRunner) Run(ctx context.Context, req *agent.Request, emit func(*models.StreamEvent)) string {
	emit(models.NewEvent(req.SessionID, models.EventTypeInit, "Starting"))
	if r.store != nil {
		r.store.Put(req.SessionID, []models.Evidence{
			{ID: 1, Title: "guideline.pdf", Content: "Metformin is first-line therapy.", Similarity: 0.91},
		})
	}
	final := models.NewEvent(req.SessionID, models.EventTypeFinalAnswer, "Metformin [1].")
	final.AnswerData = &models.AnswerData{
		Answer:    "Metformin [1].",
		Citations: []models.Citation{{ID: 1, Title: "guideline.pdf", Preview: "Metformin is first-line therap..."}},
	}
	emit(final)
	emit(models.NewEvent(req.SessionID, models.EventTypeCompleted, "Reasoning completed"))
	return models.EventTypeFinalAnswer
}

type testEnv struct {
	server   *Server
	router   http.Handler
	store    *citations.Store
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := citations.NewStore(config.DefaultCitationConfig(), logger)
	sessions := session.NewManager(time.Minute, logger)

	cfg := config.DefaultPipelineConfig()
	cfg.AdmissionTimeout = time.Second
	agentCfg := config.DefaultAgentConfig()
	agentCfg.WallClock = 5 * time.Second

	p := pipeline.New(cfg, agentCfg, config.DefaultGenerationConfig(),
		sessions, store, &answerRunner{store: store}, logger)
	srv := NewServer(p, sessions, store, logger)
	return &testEnv{server: srv, router: srv.Router(), store: store, sessions: sessions}
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeFrames(t *testing.T, body string) []*models.StreamEvent {
	t.Helper()
	var events []*models.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, &ev)
	}
	return events
}

func TestChatStream(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.router, "/chat/stream", gin.H{"question": "What is first-line therapy for type 2 diabetes?"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := decodeFrames(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, models.EventTypeInit, events[0].Type)
	assert.Equal(t, models.EventTypeFinalAnswer, events[1].Type)
	require.NotNil(t, events[1].AnswerData)
	assert.Equal(t, models.EventTypeCompleted, events[2].Type)
}

func TestChatStreamBadRequest(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.router, "/chat/stream", gin.H{"not_question": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStreamHonorsSessionID(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.router, "/chat/stream", gin.H{
		"question":   "q",
		"session_id": "client-abc",
	})
	events := decodeFrames(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "client-abc", events[0].SessionID)

	sess, ok := env.sessions.Get("client-abc")
	require.True(t, ok)
	assert.Equal(t, session.StatusCompleted, sess.Status)
}

func TestChatCollected(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.router, "/chat", gin.H{"question": "q"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SessionID   string               `json:"session_id"`
		Events      []models.StreamEvent `json:"events"`
		TotalEvents int                  `json:"total_events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 3, resp.TotalEvents)
	assert.Equal(t, models.EventTypeCompleted, resp.Events[2].Type)
}

func TestGetCitation(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.router, "/chat", gin.H{"question": "q"})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/citation/1", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	var resp struct {
		ID          int    `json:"id"`
		FullContent string `json:"full_content"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ID)
	assert.Equal(t, "Metformin is first-line therapy.", resp.FullContent)
}

func TestGetCitationScopedBySession(t *testing.T) {
	env := newTestEnv(t)
	env.store.Put("sess-a", []models.Evidence{{ID: 1, Content: "from a"}})
	env.store.Put("sess-b", []models.Evidence{{ID: 1, Content: "from b"}})

	req := httptest.NewRequest(http.MethodGet, "/citation/1?session_id=sess-a", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), "from a")
}

func TestGetCitationNotFound(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/citation/99", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNotFound, out.Code)
}

func TestGetCitationBadID(t *testing.T) {
	env := newTestEnv(t)
	for _, raw := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/citation/"+raw, nil)
		out := httptest.NewRecorder()
		env.router.ServeHTTP(out, req)
		assert.Equal(t, http.StatusBadRequest, out.Code, raw)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	var resp struct {
		Status          string `json:"status"`
		MaxConcurrent   int    `json:"max_concurrent"`
		AvailableSlots  int    `json:"available_slots"`
		ProcessingCount int    `json:"processing_count"`
		ActiveSessions  int    `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.MaxConcurrent)
	assert.Equal(t, 3, resp.AvailableSlots)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	postJSON(t, env.router, "/chat", gin.H{"question": "first"})
	postJSON(t, env.router, "/chat", gin.H{"question": "second"})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	var sessions []session.Session
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/chat/stream", nil)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)

	assert.Equal(t, http.StatusNoContent, out.Code)
	assert.Equal(t, "*", out.Header().Get("Access-Control-Allow-Origin"))
}
