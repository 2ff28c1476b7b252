package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medrag/deepquery/pkg/config"
)

// SandboxClient runs model-authored Python in the sandboxed execution
// service. Each execution carries a hard wall-clock cap on top of the
// caller's context.
type SandboxClient struct {
	cfg    *config.SandboxConfig
	client *http.Client
	logger *slog.Logger
}

// NewSandboxClient builds the code execution client.
func NewSandboxClient(cfg *config.SandboxConfig, logger *slog.Logger) *SandboxClient {
	return &SandboxClient{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger.With("component", "sandbox"),
	}
}

type sandboxRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type sandboxResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Execute runs the code and returns captured stdout/stderr. A non-empty
// sandbox-side error is folded into the returned text rather than failing
// the call, so the model sees what went wrong.
func (s *SandboxClient) Execute(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", &BadToolArgsError{Tool: ToolCodeExecution, Reason: "empty code block"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(sandboxRequest{Code: code, Language: "python"})
	if err != nil {
		return "", fmt.Errorf("marshal sandbox request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create sandbox request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sandbox request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sandbox response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed sandboxResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// Some sandboxes reply with plain text output.
		return string(raw), nil
	}
	if parsed.Error != "" {
		s.logger.Info("sandbox execution raised", "error", parsed.Error)
		if parsed.Output != "" {
			return parsed.Output + "\n[stderr] " + parsed.Error, nil
		}
		return "[stderr] " + parsed.Error, nil
	}
	return parsed.Output, nil
}
