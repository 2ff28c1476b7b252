package models

import "time"

// Stream event types emitted over the SSE channel, in rough order of
// appearance during a session. The set is closed: the web client switches on
// these strings.
const (
	EventTypeInit              = "init"
	EventTypeRoundStart        = "round_start"
	EventTypeRoundEnd          = "round_end"
	EventTypeThinkingStart     = "thinking_start"
	EventTypeThinking          = "thinking"
	EventTypeToolCallStart     = "tool_call_start"
	EventTypeToolExecution     = "tool_execution"
	EventTypePythonExecution   = "python_execution"
	EventTypeToolResult        = "tool_result"
	EventTypeToolError         = "tool_error"
	EventTypeRetrievalJudgment = "retrieval_judgment"
	EventTypeJudgmentStreaming = "judgment_streaming"
	EventTypeJudgmentResult    = "judgment_result"
	EventTypeAnswerGeneration  = "answer_generation"
	EventTypeContinueReasoning = "continue_reasoning"
	EventTypeFinalAnswerChunk  = "final_answer_chunk"
	EventTypeAnswerStreaming   = "answer_streaming"
	EventTypeTokenLimit        = "token_limit"
)

// Terminal event types. Every session stream carries exactly one of these,
// followed by exactly one "completed".
const (
	EventTypeFinalAnswer = "final_answer"
	EventTypeNoAnswer    = "no_answer"
	EventTypeTimeout     = "timeout"
	EventTypeCancelled   = "cancelled"
	EventTypeError       = "error"
	EventTypeCompleted   = "completed"
)

// StreamEvent is a single frame on the session event stream. Type-specific
// fields are omitted from the JSON encoding when unset.
type StreamEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`

	// round_start / round_end
	Round int `json:"round,omitempty"`

	// tool_execution
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`

	// tool_result
	Result string `json:"result,omitempty"`

	// python_execution
	Code string `json:"code,omitempty"`

	// final_answer_chunk / answer_streaming / judgment_streaming
	Accumulated string `json:"accumulated,omitempty"`
	IsStreaming bool   `json:"is_streaming,omitempty"`

	// judgment_result
	Judgment *Judgment `json:"judgment,omitempty"`

	// final_answer
	AnswerData *AnswerData `json:"answer_data,omitempty"`
}

// NewEvent creates a stream event stamped with the current time.
func NewEvent(sessionID, eventType, content string) *StreamEvent {
	return &StreamEvent{
		Type:      eventType,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		SessionID: sessionID,
	}
}

// IsTerminal reports whether t is one of the terminal event types
// (final_answer, no_answer, timeout, cancelled, error).
func IsTerminal(t string) bool {
	switch t {
	case EventTypeFinalAnswer, EventTypeNoAnswer, EventTypeTimeout,
		EventTypeCancelled, EventTypeError:
		return true
	}
	return false
}
