package models

// MessageRole identifies the author of a transcript entry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is a single entry in a session transcript. The transcript is the
// sole input shape passed to the LLM client on each round.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ToolCall is a parsed tool invocation extracted from the model's text output.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
