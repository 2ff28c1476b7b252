package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/medrag/deepquery/pkg/models"
)

// Inline protocol delimiters. Tool calls, thinking, and the final answer are
// embedded in the model's text stream between explicit tags; a block may be
// split across any number of deltas, so parsing always runs over the
// accumulated text, never a single delta.
const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
	thinkOpen     = "<think>"
	thinkClose    = "</think>"
	answerOpen    = "<answer>"
	answerClose   = "</answer>"
	codeOpen      = "<code>"
	codeClose     = "</code>"

	toolResponseOpen = "<tool_response>"
)

// ErrMalformedToolCall indicates a closed tool_call block whose interior is
// not parseable.
var ErrMalformedToolCall = errors.New("malformed tool call")

// ParsedResponse is one round's model output after protocol extraction.
type ParsedResponse struct {
	// Content is the assistant text with anything after a <tool_response>
	// marker removed. This is what enters the transcript.
	Content string

	// Thinking is the interior of the first <think> block, if any.
	Thinking string

	// ToolCall is the parsed call from the first complete <tool_call>
	// block. For code execution the source ends up in Arguments["code"].
	ToolCall *models.ToolCall

	// RawToolCall is the unparsed block interior, kept for event summaries.
	RawToolCall string

	// Code is the interior of a <code> block inside the tool call.
	Code string

	// Answer is the interior of the first <answer> block, if any.
	Answer string

	// ToolCallErr is non-nil when a tool_call block closed but could not be
	// parsed. The round survives; the orchestrator emits tool_error.
	ToolCallErr error
}

// ParseResponse extracts the protocol blocks from a complete round response.
func ParseResponse(content string) *ParsedResponse {
	// The model must never fabricate observations: everything from the
	// first <tool_response> marker on is dropped.
	if pos := strings.Index(content, toolResponseOpen); pos >= 0 {
		content = content[:pos]
	}
	content = strings.TrimSpace(content)

	p := &ParsedResponse{Content: content}
	p.Thinking = between(content, thinkOpen, thinkClose)
	p.Answer = between(content, answerOpen, answerClose)

	raw, ok := completeBlock(content, toolCallOpen, toolCallClose)
	if !ok {
		// A block that opened but never closed means generation was cut off
		// mid-call. Surface it as malformed so the round recovers instead of
		// silently ignoring the truncated call.
		if HasOpenToolCall(content) {
			open := strings.LastIndex(content, toolCallOpen)
			p.RawToolCall = strings.TrimSpace(content[open+len(toolCallOpen):])
			p.ToolCallErr = fmt.Errorf("%w: unclosed tool_call block", ErrMalformedToolCall)
		}
		return p
	}
	p.RawToolCall = strings.TrimSpace(raw)
	p.parseToolCall()
	return p
}

// HasOpenToolCall reports whether the accumulated text contains a tool_call
// block that has not closed yet.
func HasOpenToolCall(content string) bool {
	open := strings.LastIndex(content, toolCallOpen)
	if open < 0 {
		return false
	}
	return !strings.Contains(content[open:], toolCallClose)
}

func (p *ParsedResponse) parseToolCall() {
	interior := p.RawToolCall

	// Code execution form: an empty-arguments JSON header followed by the
	// source inside <code> tags.
	if code := between(interior, codeOpen, codeClose); code != "" {
		p.Code = strings.TrimSpace(code)
		name := "code_execution"
		if header := jsonHead(interior); header != "" {
			var call struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal([]byte(header), &call); err == nil && call.Name != "" {
				name = call.Name
			}
		}
		p.ToolCall = &models.ToolCall{
			Name:      name,
			Arguments: map[string]any{"code": p.Code},
		}
		return
	}

	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(interior), &call); err != nil {
		p.ToolCallErr = fmt.Errorf("%w: %v", ErrMalformedToolCall, err)
		return
	}
	if call.Name == "" {
		p.ToolCallErr = fmt.Errorf("%w: missing tool name", ErrMalformedToolCall)
		return
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	p.ToolCall = &models.ToolCall{Name: call.Name, Arguments: call.Arguments}
}

// between returns the interior of the first open..close span, or "".
func between(s, open, close string) string {
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	rest := s[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// completeBlock returns the interior of the first open..close span and
// whether one exists.
func completeBlock(s, open, close string) (string, bool) {
	start := strings.Index(s, open)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// jsonHead returns the first balanced {...} object in s, or "".
func jsonHead(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
