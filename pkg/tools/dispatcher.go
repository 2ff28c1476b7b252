package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/medrag/deepquery/pkg/models"
)

// Canonical tool names. The model is prompted with these, but older aliases
// it may still emit are normalized in Dispatch.
const (
	ToolKnowledgeRetrieval = "knowledge_retrieval"
	ToolCodeExecution      = "code_execution"
	ToolJudgeSufficiency   = "judge_sufficiency"
)

// Result is a normalized tool outcome: the text that enters the transcript
// plus any structured payload the orchestrator consumes directly.
type Result struct {
	Text      string
	Truncated bool

	// Evidence is set by knowledge retrieval.
	Evidence []models.Evidence

	// Judgment is set by sufficiency judgment.
	Judgment *models.Judgment
}

// Dispatcher routes tool calls to their implementations.
type Dispatcher struct {
	retrieval  *RetrievalClient
	classifier *Classifier
	sandbox    *SandboxClient
	judge      *Judge

	maxResultBytes int
	logger         *slog.Logger
}

// NewDispatcher wires the tool registry.
func NewDispatcher(retrieval *RetrievalClient, classifier *Classifier, sandbox *SandboxClient, judge *Judge, maxResultBytes int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		retrieval:      retrieval,
		classifier:     classifier,
		sandbox:        sandbox,
		judge:          judge,
		maxResultBytes: maxResultBytes,
		logger:         logger.With("component", "dispatcher"),
	}
}

// Judge exposes the sufficiency judge for the orchestrator's streaming
// judgment phase.
func (d *Dispatcher) Judge() *Judge { return d.judge }

// Canonicalize maps tool-name aliases to registry names. Unrecognized names
// pass through unchanged and fail in Dispatch.
func Canonicalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case lower == ToolKnowledgeRetrieval || lower == "retrieval":
		return ToolKnowledgeRetrieval
	case lower == ToolCodeExecution || strings.Contains(lower, "python"):
		return ToolCodeExecution
	case lower == ToolJudgeSufficiency:
		return ToolJudgeSufficiency
	}
	return name
}

// Dispatch executes one tool call. The context is checked up front so a
// cancelled session never starts a new side effect.
func (d *Dispatcher) Dispatch(ctx context.Context, call *models.ToolCall) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *Result
	var err error
	switch Canonicalize(call.Name) {
	case ToolKnowledgeRetrieval:
		res, err = d.dispatchRetrieval(ctx, call.Arguments)
	case ToolCodeExecution:
		res, err = d.dispatchCode(ctx, call.Arguments)
	case ToolJudgeSufficiency:
		res, err = d.dispatchJudge(ctx, call.Arguments)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if err != nil {
		return nil, err
	}

	if d.maxResultBytes > 0 && len(res.Text) > d.maxResultBytes {
		res.Text = truncateUTF8(res.Text, d.maxResultBytes) + "\n...[output truncated]"
		res.Truncated = true
		d.logger.Info("tool result truncated", "tool", call.Name, "cap_bytes", d.maxResultBytes)
	}
	return res, nil
}

func (d *Dispatcher) dispatchRetrieval(ctx context.Context, args map[string]any) (*Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		query = stringArg(args, "question")
	}
	if query == "" {
		return nil, &BadToolArgsError{Tool: ToolKnowledgeRetrieval, Reason: "query is required"}
	}

	datasetIDs := stringSliceArg(args, "dataset_ids")
	if len(datasetIDs) == 0 {
		_, datasetIDs = d.classifier.Classify(ctx, query)
	}
	topK := intArg(args, "top_k")

	evidence, text, err := d.retrieval.Retrieve(ctx, query, datasetIDs, topK)
	if err != nil {
		return nil, &ExecutionError{Tool: ToolKnowledgeRetrieval, Err: err}
	}
	return &Result{Text: text, Evidence: evidence}, nil
}

func (d *Dispatcher) dispatchCode(ctx context.Context, args map[string]any) (*Result, error) {
	code := stringArg(args, "code")
	if code == "" {
		return nil, &BadToolArgsError{Tool: ToolCodeExecution, Reason: "code is required"}
	}
	if lang := stringArg(args, "language"); lang != "" && !strings.EqualFold(lang, "python") {
		return nil, &BadToolArgsError{Tool: ToolCodeExecution, Reason: "unsupported language " + lang}
	}

	output, err := d.sandbox.Execute(ctx, code)
	if err != nil {
		if _, ok := err.(*BadToolArgsError); ok {
			return nil, err
		}
		return nil, &ExecutionError{Tool: ToolCodeExecution, Err: err}
	}
	return &Result{Text: output}, nil
}

func (d *Dispatcher) dispatchJudge(ctx context.Context, args map[string]any) (*Result, error) {
	question := stringArg(args, "question")
	evidence := stringArg(args, "evidence")
	if question == "" {
		return nil, &BadToolArgsError{Tool: ToolJudgeSufficiency, Reason: "question is required"}
	}

	judgment, err := d.judge.Judge(ctx, question, evidence, nil)
	if err != nil {
		return nil, &ExecutionError{Tool: ToolJudgeSufficiency, Err: err}
	}
	text := fmt.Sprintf("can_answer=%t confidence=%.2f reason=%s",
		judgment.CanAnswer, judgment.Confidence, judgment.Reason)
	return &Result{Text: text, Judgment: judgment}, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
