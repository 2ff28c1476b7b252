// Package agent drives the per-request reasoning loop: think, act, observe,
// judge, and finally answer, emitting the typed event stream the client
// consumes along the way.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medrag/deepquery/pkg/agent/prompt"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/llm"
	"github.com/medrag/deepquery/pkg/models"
	"github.com/medrag/deepquery/pkg/tools"
)

// ToolDispatcher routes parsed tool calls.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call *models.ToolCall) (*tools.Result, error)
}

// SufficiencyJudge decides whether accumulated evidence answers the
// question.
type SufficiencyJudge interface {
	Judge(ctx context.Context, question, evidence string, onDelta func(string)) (*models.Judgment, error)
}

// CitationSink receives the numbered evidence backing a final answer.
type CitationSink interface {
	Put(sessionID string, evidence []models.Evidence)
}

// Orchestrator holds the shared collaborators. One Run call per session;
// all per-session state lives in the run.
type Orchestrator struct {
	llm        llm.Client
	dispatcher ToolDispatcher
	judge      SufficiencyJudge
	citations  CitationSink
	agentCfg   *config.AgentConfig
	llmCfg     *config.LLMConfig
	estimator  *TokenEstimator
	logger     *slog.Logger
}

// NewOrchestrator wires the reasoning loop.
func NewOrchestrator(client llm.Client, dispatcher ToolDispatcher, judge SufficiencyJudge, citations CitationSink, agentCfg *config.AgentConfig, llmCfg *config.LLMConfig, estimator *TokenEstimator, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:        client,
		dispatcher: dispatcher,
		judge:      judge,
		citations:  citations,
		agentCfg:   agentCfg,
		llmCfg:     llmCfg,
		estimator:  estimator,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Request is one admitted question.
type Request struct {
	SessionID string
	Question  string

	// Generation is this request's private copy of the sampling template.
	Generation *config.GenerationConfig
}

// run is the per-session state.
type run struct {
	o          *Orchestrator
	req        *Request
	emit       func(*models.StreamEvent)
	transcript []models.Message
	evidence   []models.Evidence

	// reportedTokens is the latest total the backend reported in a usage
	// chunk, zero until one arrives.
	reportedTokens int

	logger *slog.Logger
}

// Run executes the session to its terminal event and returns the terminal
// event type. On every path it emits exactly one terminal event followed by
// exactly one completed event.
func (o *Orchestrator) Run(ctx context.Context, req *Request, emit func(*models.StreamEvent)) string {
	r := &run{
		o:      o,
		req:    req,
		emit:   emit,
		logger: o.logger.With("session_id", req.SessionID),
	}
	r.send(models.EventTypeInit, "Processing question: "+req.Question)
	r.transcript = []models.Message{
		{Role: models.RoleSystem, Content: prompt.System(time.Now().Format("2006-01-02"))},
		{Role: models.RoleUser, Content: req.Question},
	}
	r.logger.Info("session started", "question", preview(req.Question, 80))

	for round := 1; round <= o.agentCfg.MaxRounds; round++ {
		// Checkpoint before each round.
		if t := terminalFor(ctx); t != "" {
			return r.terminal(t)
		}

		r.sendRound(models.EventTypeRoundStart, round, fmt.Sprintf("Round %d started", round))
		r.send(models.EventTypeThinkingStart, "Thinking...")

		content, t, err := r.collect(ctx, &llm.ChatRequest{
			Messages:   r.transcript,
			Generation: r.req.Generation,
		}, func(delta, _ string) {
			r.send(models.EventTypeThinking, delta)
		})
		if t != "" {
			return r.terminal(t)
		}
		if err != nil {
			return r.fail(err)
		}

		parsed := ParseResponse(content)
		// The extracted reasoning segment is surfaced as its own event,
		// separate from the raw tag-bearing deltas streamed above.
		if parsed.Thinking != "" {
			r.send(models.EventTypeThinking, parsed.Thinking)
		}
		if parsed.Content != "" {
			r.transcript = append(r.transcript, models.Message{Role: models.RoleAssistant, Content: parsed.Content})
		}

		handledTool := false
		if parsed.RawToolCall != "" || parsed.ToolCallErr != nil {
			handledTool = true
			if t := r.act(ctx, parsed); t != "" {
				return t
			}
		}

		// A direct answer with no evidence behind it: nothing to judge or
		// cite, trust the model.
		if parsed.Answer != "" && len(r.evidence) == 0 {
			return r.finishWithAnswer(parsed.Answer)
		}

		if len(r.evidence) > 0 && (handledTool || parsed.Answer != "") {
			judgment, t := r.judgePhase(ctx)
			if t != "" {
				return t
			}
			if judgment.CanAnswer {
				return r.answerPhase(ctx)
			}
			if round < o.agentCfg.MaxRounds {
				r.send(models.EventTypeContinueReasoning, "Evidence insufficient, continuing research: "+judgment.Reason)
			}
		}

		// The backend's reported usage, when present, overrides the local
		// estimate: it already includes the tokens the estimator can only
		// approximate.
		count := o.estimator.Count(r.transcript)
		if r.reportedTokens > count {
			count = r.reportedTokens
		}
		if count > o.agentCfg.MaxContextTokens {
			r.send(models.EventTypeTokenLimit,
				fmt.Sprintf("Context budget reached (%d > %d tokens), concluding", count, o.agentCfg.MaxContextTokens))
			return r.concludePhase(ctx)
		}

		r.sendRound(models.EventTypeRoundEnd, round, fmt.Sprintf("Round %d finished", round))
	}

	return r.terminal(models.EventTypeNoAnswer)
}

// act executes one tool call, emits the surrounding events, and appends the
// observation to the transcript. Returns a terminal type when the session
// must stop.
func (r *run) act(ctx context.Context, parsed *ParsedResponse) string {
	r.send(models.EventTypeToolCallStart, "Preparing tool call: "+preview(parsed.RawToolCall, 100))

	var observation string
	switch {
	case parsed.ToolCallErr != nil:
		r.send(models.EventTypeToolError, parsed.ToolCallErr.Error())
		observation = "Tool call error: " + parsed.ToolCallErr.Error()

	default:
		if parsed.Code != "" {
			ev := r.event(models.EventTypePythonExecution,
				"Executing Python code:\n```python\n"+parsed.Code+"\n```")
			ev.Code = parsed.Code
			r.emit(ev)
		} else {
			ev := r.event(models.EventTypeToolExecution,
				fmt.Sprintf("Calling tool %s", parsed.ToolCall.Name))
			ev.ToolName = parsed.ToolCall.Name
			ev.ToolArgs = parsed.ToolCall.Arguments
			r.emit(ev)
		}

		// Checkpoint before dispatch.
		if t := terminalFor(ctx); t != "" {
			return r.terminal(t)
		}

		res, err := r.o.dispatcher.Dispatch(ctx, parsed.ToolCall)
		switch {
		case err != nil && ctx.Err() != nil:
			return r.terminal(terminalFor(ctx))
		case err != nil:
			r.logger.Warn("tool call failed", "tool", parsed.ToolCall.Name, "error", err)
			r.send(models.EventTypeToolError, err.Error())
			observation = "Tool call error: " + err.Error()
		default:
			ev := r.event(models.EventTypeToolResult, "Tool execution result:\n"+res.Text)
			ev.Result = res.Text
			r.emit(ev)
			observation = res.Text
			r.evidence = append(r.evidence, res.Evidence...)
		}
	}

	r.transcript = append(r.transcript, models.Message{
		Role:    models.RoleUser,
		Content: "<tool_response>\n" + observation + "\n</tool_response>",
	})
	return ""
}

// judgePhase asks the judge whether the evidence suffices, streaming its
// reasoning. Judge failures are recoverable: they read as "cannot answer".
func (r *run) judgePhase(ctx context.Context) (*models.Judgment, string) {
	r.send(models.EventTypeRetrievalJudgment, "Evaluating whether retrieved evidence answers the question")

	evidenceText := SourcesContent(NumberEvidence(r.evidence))
	judgment, err := r.o.judge.Judge(ctx, r.req.Question, evidenceText, func(delta string) {
		ev := r.event(models.EventTypeJudgmentStreaming, delta)
		ev.IsStreaming = true
		r.emit(ev)
	})
	if err != nil {
		if t := terminalFor(ctx); t != "" {
			return nil, r.terminal(t)
		}
		r.logger.Warn("judgment failed, treating as insufficient", "error", err)
		judgment = &models.Judgment{CanAnswer: false, Reason: "judgment failed: " + err.Error()}
	}

	ev := r.event(models.EventTypeJudgmentResult,
		fmt.Sprintf("Judgment: can_answer=%t confidence=%.2f", judgment.CanAnswer, judgment.Confidence))
	ev.Judgment = judgment
	r.emit(ev)
	return judgment, ""
}

// answerPhase streams the cited final answer from the numbered evidence.
func (r *run) answerPhase(ctx context.Context) string {
	r.send(models.EventTypeAnswerGeneration, "Generating final answer with citations")

	numbered := NumberEvidence(r.evidence)
	gen := r.req.Generation.Clone()
	gen.Temperature = 0.5
	gen.MaxTokens = 8192
	gen.Stop = nil

	content, t, err := r.collect(ctx, &llm.ChatRequest{
		Model: r.o.llmCfg.JudgeModelName(),
		Messages: []models.Message{
			{Role: models.RoleUser, Content: prompt.Answer(r.req.Question, SourcesContent(numbered))},
		},
		Generation: gen,
	}, func(delta, accumulated string) {
		ev := r.event(models.EventTypeFinalAnswerChunk, delta)
		ev.Accumulated = accumulated
		ev.IsStreaming = true
		r.emit(ev)
	})
	if t != "" {
		return r.terminal(t)
	}
	if err != nil {
		return r.fail(err)
	}

	answer := strings.TrimSpace(content)
	if inner := between(answer, answerOpen, answerClose); inner != "" {
		answer = inner
	}

	ev := r.event(models.EventTypeAnswerStreaming, answer)
	ev.Accumulated = answer
	r.emit(ev)

	return r.finishCited(answer, numbered)
}

// concludePhase handles context-budget exhaustion: the last transcript entry
// is replaced by the conclusion instruction and the model gets one final
// call.
func (r *run) concludePhase(ctx context.Context) string {
	if len(r.transcript) > 0 {
		r.transcript[len(r.transcript)-1].Content = prompt.TokenLimitConclusion
	}

	content, t, err := r.collect(ctx, &llm.ChatRequest{
		Messages:   r.transcript,
		Generation: r.req.Generation,
	}, func(delta, accumulated string) {
		ev := r.event(models.EventTypeFinalAnswerChunk, delta)
		ev.Accumulated = accumulated
		ev.IsStreaming = true
		r.emit(ev)
	})
	if t != "" {
		return r.terminal(t)
	}
	if err != nil {
		return r.fail(err)
	}

	answer := strings.TrimSpace(content)
	if inner := between(answer, answerOpen, answerClose); inner != "" {
		answer = inner
	}
	if len(r.evidence) > 0 {
		return r.finishCited(answer, NumberEvidence(r.evidence))
	}
	return r.finishWithAnswer(answer)
}

// finishCited deposits the numbered evidence in the citation store and emits
// the terminal final_answer carrying the citation list.
func (r *run) finishCited(answer string, numbered []models.Evidence) string {
	r.o.citations.Put(r.req.SessionID, numbered)

	ev := r.event(models.EventTypeFinalAnswer, answer)
	ev.AnswerData = &models.AnswerData{
		Answer:    answer,
		Citations: AssembleCitations(answer, numbered),
	}
	r.emit(ev)
	r.send(models.EventTypeCompleted, "Reasoning completed")
	r.logger.Info("session answered", "citations", len(ev.AnswerData.Citations))
	return models.EventTypeFinalAnswer
}

// finishWithAnswer emits a final answer with no citation list.
func (r *run) finishWithAnswer(answer string) string {
	ev := r.event(models.EventTypeFinalAnswer, answer)
	ev.AnswerData = &models.AnswerData{Answer: answer}
	r.emit(ev)
	r.send(models.EventTypeCompleted, "Reasoning completed")
	return models.EventTypeFinalAnswer
}

// collect streams one LLM call, invoking onDelta per text delta with the
// delta and the accumulated text, checking cancellation after every delta.
// Returns the full text, or a terminal type, or a backend error.
func (r *run) collect(ctx context.Context, req *llm.ChatRequest, onDelta func(delta, accumulated string)) (string, string, error) {
	chunks, err := r.o.llm.StreamChat(ctx, req)
	if err != nil {
		if t := terminalFor(ctx); t != "" {
			return "", t, nil
		}
		return "", "", err
	}

	var b strings.Builder
	for chunk := range chunks {
		switch ch := chunk.(type) {
		case *llm.TextChunk:
			b.WriteString(ch.Content)
			onDelta(ch.Content, b.String())
			// Checkpoint after each delta.
			if t := terminalFor(ctx); t != "" {
				drain(chunks)
				return "", t, nil
			}
		case *llm.UsageChunk:
			r.reportedTokens = ch.TotalTokens
		case *llm.ErrorChunk:
			drain(chunks)
			if t := terminalFor(ctx); t != "" {
				return "", t, nil
			}
			return "", "", ch.Err
		}
	}
	return b.String(), "", nil
}

func drain(chunks <-chan llm.Chunk) {
	for range chunks {
	}
}

// terminalFor maps a done context to its terminal event type; "" while the
// context is still live.
func terminalFor(ctx context.Context) string {
	switch {
	case ctx.Err() == nil:
		return ""
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.EventTypeTimeout
	default:
		return models.EventTypeCancelled
	}
}

func (r *run) event(eventType, content string) *models.StreamEvent {
	return models.NewEvent(r.req.SessionID, eventType, content)
}

func (r *run) send(eventType, content string) {
	r.emit(r.event(eventType, content))
}

func (r *run) sendRound(eventType string, round int, content string) {
	ev := r.event(eventType, content)
	ev.Round = round
	r.emit(ev)
}

// terminal emits the terminal event and the trailing completed event.
func (r *run) terminal(t string) string {
	content := map[string]string{
		models.EventTypeCancelled: "Session cancelled",
		models.EventTypeTimeout:   "Session exceeded its wall-clock budget",
		models.EventTypeNoAnswer:  "No definitive answer found within the round budget",
	}[t]
	if content == "" {
		content = t
	}
	r.send(t, content)
	r.send(models.EventTypeCompleted, "Reasoning completed")
	r.logger.Info("session finished", "terminal", t)
	return t
}

// fail emits the error terminal for a non-recoverable failure.
func (r *run) fail(err error) string {
	r.logger.Error("session failed", "error", err)
	r.send(models.EventTypeError, "Reasoning failed: "+err.Error())
	r.send(models.EventTypeCompleted, "Reasoning completed")
	return models.EventTypeError
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
