// Package pipeline admits requests under the concurrency cap, isolates each
// one in its own orchestrator run, and guarantees every admitted stream ends
// with a terminal event and a completed event no matter how the run ends.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/medrag/deepquery/pkg/agent"
	"github.com/medrag/deepquery/pkg/citations"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
	"github.com/medrag/deepquery/pkg/session"
)

// Runner abstracts the orchestrator for the pipeline.
type Runner interface {
	Run(ctx context.Context, req *agent.Request, emit func(*models.StreamEvent)) string
}

// Query is one incoming question with optional sampling overrides. SessionID
// lets clients correlate the stream with their own identifier; left empty, a
// fresh UUID is assigned.
type Query struct {
	Question        string   `json:"question" binding:"required"`
	SessionID       string   `json:"session_id,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
}

// Pipeline coordinates admission, execution, and cleanup.
type Pipeline struct {
	sem      *semaphore.Weighted
	capacity int64
	active   atomic.Int64

	cfg       *config.PipelineConfig
	wallClock time.Duration
	genTmpl   *config.GenerationConfig

	sessions  *session.Manager
	citations *citations.Store
	runner    Runner
	logger    *slog.Logger
}

// New builds the pipeline.
func New(cfg *config.PipelineConfig, agentCfg *config.AgentConfig, genTmpl *config.GenerationConfig, sessions *session.Manager, store *citations.Store, runner Runner, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		capacity:  int64(cfg.MaxConcurrentRequests),
		cfg:       cfg,
		wallClock: agentCfg.WallClock,
		genTmpl:   genTmpl,
		sessions:  sessions,
		citations: store,
		runner:    runner,
		logger:    logger.With("component", "pipeline"),
	}
}

// MaxConcurrent returns the admission cap.
func (p *Pipeline) MaxConcurrent() int { return int(p.capacity) }

// AvailableSlots returns the number of free admission slots.
func (p *Pipeline) AvailableSlots() int {
	free := p.capacity - p.active.Load()
	if free < 0 {
		free = 0
	}
	return int(free)
}

// Process admits the query and returns its event stream. The channel is
// closed after the completed event on every path, including admission
// failure, cancellation, and orchestrator panic. ctx is the request context:
// its cancellation signals client disconnect.
func (p *Pipeline) Process(ctx context.Context, q *Query) <-chan *models.StreamEvent {
	out := make(chan *models.StreamEvent, 16)

	admitCtx, cancel := context.WithTimeout(ctx, p.cfg.AdmissionTimeout)
	err := p.sem.Acquire(admitCtx, 1)
	cancel()
	if err != nil {
		// A client that disconnected while waiting gets nothing: there is
		// nobody left to read a busy frame.
		if ctx.Err() != nil {
			p.logger.Info("client left during admission wait", "error", ctx.Err())
			close(out)
			return out
		}
		p.logger.Warn("admission failed", "error", err)
		go func() {
			defer close(out)
			out <- models.NewEvent("", models.EventTypeError,
				"Server busy: no processing slot became available, please retry later")
			out <- models.NewEvent("", models.EventTypeCompleted, "Reasoning completed")
		}()
		return out
	}
	p.active.Add(1)

	sess := p.sessions.CreateWithID(q.SessionID, q.Question)
	p.sessions.SetStatus(sess.ID, session.StatusProcessing)

	go p.execute(ctx, sess, q, out)
	return out
}

// execute runs one admitted session, enforcing the terminal-event guarantee
// and releasing the slot exactly once.
func (p *Pipeline) execute(ctx context.Context, sess *session.Session, q *Query, out chan<- *models.StreamEvent) {
	runCtx, cancel := context.WithTimeout(ctx, p.wallClock)

	var terminalSeen, completedSeen bool
	emit := func(ev *models.StreamEvent) {
		if models.IsTerminal(ev.Type) {
			terminalSeen = true
		}
		if ev.Type == models.EventTypeCompleted {
			completedSeen = true
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			// Client is gone; the orchestrator will observe cancellation at
			// its next checkpoint. Dropping the frame is harmless.
		}
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("orchestrator panicked", "session_id", sess.ID, "panic", r)
			if !terminalSeen {
				emit(models.NewEvent(sess.ID, models.EventTypeError, fmt.Sprintf("internal error: %v", r)))
			}
			if !completedSeen {
				emit(models.NewEvent(sess.ID, models.EventTypeCompleted, "Reasoning completed"))
			}
			p.sessions.SetStatus(sess.ID, session.StatusFailed)
		}
		cancel()
		p.citations.MarkTerminal(sess.ID)
		p.active.Add(-1)
		p.sem.Release(1)
		close(out)
	}()

	terminal := p.runner.Run(runCtx, &agent.Request{
		SessionID:  sess.ID,
		Question:   q.Question,
		Generation: p.generation(q),
	}, emit)

	p.sessions.SetStatus(sess.ID, session.StatusForTerminalEvent(terminal))
}

// generation builds the request's private sampling config from the
// process-wide template plus the query's overrides.
func (p *Pipeline) generation(q *Query) *config.GenerationConfig {
	gen := p.genTmpl.Clone()
	if q.Temperature != nil {
		gen.Temperature = *q.Temperature
	}
	if q.TopP != nil {
		gen.TopP = *q.TopP
	}
	if q.PresencePenalty != nil {
		gen.PresencePenalty = *q.PresencePenalty
	}
	if q.MaxTokens != nil {
		gen.MaxTokens = *q.MaxTokens
	}
	return gen
}
