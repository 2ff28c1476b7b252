// Package llm is the OpenAI-compatible chat-completions client. Streaming
// calls deliver deltas over a channel; errors travel in-band as ErrorChunk
// values so the consumer only has one stream to drain.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
)

// ErrBackendUnavailable indicates the backend could not be reached at all
// (connection refused, DNS failure) after retries were exhausted.
var ErrBackendUnavailable = errors.New("llm backend unavailable")

// ErrEmptyResponse indicates the backend answered 200 with no choices.
var ErrEmptyResponse = errors.New("llm response contained no choices")

// BackendError is a non-2xx reply from the backend.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("llm backend error %d: %s", e.Status, e.Body)
}

// Retryable reports whether the call is worth repeating. Client errors other
// than rate limiting are not.
func (e *BackendError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// ChatRequest is one chat-completions call.
type ChatRequest struct {
	Model    string
	Messages []models.Message

	// Generation overrides the client's default sampling config when set.
	Generation *config.GenerationConfig
}

// Client is the chat backend interface.
type Client interface {
	// Chat performs a blocking, non-streaming completion and returns the
	// assistant text.
	Chat(ctx context.Context, req *ChatRequest) (string, error)

	// StreamChat starts a streaming completion and returns a channel of
	// chunks. The channel is closed when the stream ends; errors arrive as
	// ErrorChunk values. A non-nil error return means the stream never
	// started.
	StreamChat(ctx context.Context, req *ChatRequest) (<-chan Chunk, error)
}

// Chunk is the interface for all streaming chunk types.
type Chunk interface {
	chunkType() ChunkType
}

// ChunkType identifies the kind of streaming chunk.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeUsage ChunkType = "usage"
	ChunkTypeError ChunkType = "error"
)

// TextChunk is a delta of the assistant's text.
type TextChunk struct{ Content string }

// UsageChunk reports token consumption, sent at most once per stream.
type UsageChunk struct{ TotalTokens int }

// ErrorChunk signals the stream died mid-flight.
type ErrorChunk struct{ Err error }

func (c *TextChunk) chunkType() ChunkType  { return ChunkTypeText }
func (c *UsageChunk) chunkType() ChunkType { return ChunkTypeUsage }
func (c *ErrorChunk) chunkType() ChunkType { return ChunkTypeError }
