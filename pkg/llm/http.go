package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/medrag/deepquery/pkg/config"
)

const (
	// streamIdleTimeout bounds the gap between two reads on an SSE stream.
	// A backend that sends headers and then goes silent is treated as dead.
	streamIdleTimeout = 60 * time.Second

	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// HTTPClient talks to an OpenAI-compatible /chat/completions endpoint.
type HTTPClient struct {
	cfg    *config.LLMConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient builds the backend client. The http.Client carries no total
// timeout: streaming inferences run for minutes and are bounded by context
// cancellation plus transport-level timeouts instead.
func NewHTTPClient(cfg *config.LLMConfig, logger *slog.Logger) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 5 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger.With("component", "llm_client"),
	}
}

var _ Client = (*HTTPClient)(nil)

type apiRequest struct {
	Model           string       `json:"model"`
	Messages        []apiMessage `json:"messages"`
	Temperature     float64      `json:"temperature,omitempty"`
	TopP            float64      `json:"top_p,omitempty"`
	PresencePenalty float64      `json:"presence_penalty,omitempty"`
	MaxTokens       int          `json:"max_tokens,omitempty"`
	Stop            []string     `json:"stop,omitempty"`
	Stream          bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type apiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (c *HTTPClient) buildRequest(req *ChatRequest, stream bool) *apiRequest {
	gen := req.Generation
	if gen == nil {
		gen = c.cfg.Generation
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	out := &apiRequest{
		Model:           model,
		Temperature:     gen.Temperature,
		TopP:            gen.TopP,
		PresencePenalty: gen.PresencePenalty,
		MaxTokens:       gen.MaxTokens,
		Stop:            gen.Stop,
		Stream:          stream,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *HTTPClient) post(ctx context.Context, body *apiRequest, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return c.client.Do(httpReq)
}

// Chat performs a non-streaming completion with retries.
func (c *HTTPClient) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	body := c.buildRequest(req, false)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1); err != nil {
				return "", err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		}
		text, err := c.chatOnce(callCtx, body)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return "", err
		}
		c.logger.Warn("llm call failed, retrying",
			"attempt", attempt, "max_retries", c.cfg.MaxRetries, "error", err)
	}
	return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
}

func (c *HTTPClient) chatOnce(ctx context.Context, body *apiRequest) (string, error) {
	resp, err := c.post(ctx, body, "")
	if err != nil {
		return "", fmt.Errorf("post chat completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &BackendError{Status: resp.StatusCode, Body: truncateForLog(string(raw), 512)}
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamChat starts a streaming completion. Connection establishment is
// retried; once deltas start flowing, a failure surfaces as an ErrorChunk
// instead because partial output has already been consumed.
func (c *HTTPClient) StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error) {
	body := c.buildRequest(req, true)

	var resp *http.Response
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		r, err := c.post(ctx, body, "text/event-stream")
		if err != nil {
			lastErr = fmt.Errorf("post chat completion: %w", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("llm stream connect failed, retrying", "attempt", attempt, "error", err)
			continue
		}
		if r.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(r.Body)
			r.Body.Close()
			berr := &BackendError{Status: r.StatusCode, Body: truncateForLog(string(raw), 512)}
			lastErr = berr
			if !berr.Retryable() {
				return nil, berr
			}
			c.logger.Warn("llm stream rejected, retrying", "attempt", attempt, "status", r.StatusCode)
			continue
		}
		resp = r
		break
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
	}

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		// Context cancellation does not interrupt a blocked Body.Read; the
		// only way to abort a stalled SSE stream is to force-close the body,
		// which fails the scanner and unblocks parseStream.
		streamDone := make(chan struct{})
		defer close(streamDone)
		go func() {
			select {
			case <-ctx.Done():
				resp.Body.Close()
			case <-streamDone:
			}
		}()

		c.parseStream(ctx, resp.Body, chunks)
	}()
	return chunks, nil
}

// parseStream reads the event stream, emitting deltas. It terminates on
// finish_reason without waiting for [DONE], since some backends never send
// it, and applies a per-read idle timeout to catch silently stalled
// connections.
func (c *HTTPClient) parseStream(ctx context.Context, r io.Reader, chunks chan<- Chunk) {
	scanner := bufio.NewScanner(&timedReader{r: r, timeout: streamIdleTimeout})
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawDelta := false
	for scanner.Scan() {
		if ctx.Err() != nil {
			chunks <- &ErrorChunk{Err: ctx.Err()}
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var chunk apiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping unparseable stream chunk", "error", err)
			continue
		}
		if chunk.Usage != nil {
			chunks <- &UsageChunk{TotalTokens: chunk.Usage.TotalTokens}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			sawDelta = true
			chunks <- &TextChunk{Content: choice.Delta.Content}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			chunks <- &ErrorChunk{Err: ctx.Err()}
			return
		}
		if errors.Is(err, errIdleTimeout) && sawDelta {
			// Partial output already delivered; treat the stall as end of
			// stream rather than discarding what the consumer has seen.
			c.logger.Warn("llm stream stalled after partial output", "idle_timeout", streamIdleTimeout)
			return
		}
		chunks <- &ErrorChunk{Err: fmt.Errorf("stream read: %w", err)}
	}
}

func retryable(err error) bool {
	var berr *BackendError
	if errors.As(err, &berr) {
		return berr.Retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return false
	}
	return true
}

// sleepBackoff waits 2^(n-1) seconds capped at backoffCap, with jitter.
func sleepBackoff(ctx context.Context, n int) error {
	d := backoffBase << (n - 1)
	if d > backoffCap {
		d = backoffCap
	}
	d += time.Duration(rand.Int63n(int64(d) / 4))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errIdleTimeout = errors.New("stream read idle timeout")

// timedReader applies a per-Read deadline so a backend that stops sending
// mid-stream cannot block the scanner forever.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
