package config

import "time"

// LLMConfig describes the OpenAI-compatible chat-completions backend.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// JudgeModel is used for sufficiency judgment and answer generation.
	// Falls back to Model when empty.
	JudgeModel string

	// RequestTimeout bounds a single non-streaming call. Streaming calls are
	// bounded by the per-session deadline instead.
	RequestTimeout time.Duration

	// MaxRetries is the attempt count for a single chat call, with capped
	// exponential backoff between attempts.
	MaxRetries int

	Generation *GenerationConfig
}

// GenerationConfig is the sampling configuration template. The process-wide
// template is read-only; per-request copies are taken with Clone before any
// request override is applied.
type GenerationConfig struct {
	Temperature     float64  `json:"temperature"`
	TopP            float64  `json:"top_p"`
	PresencePenalty float64  `json:"presence_penalty"`
	MaxTokens       int      `json:"max_tokens"`
	Stop            []string `json:"stop,omitempty"`
}

// Clone returns a deep copy safe to mutate per request.
func (g *GenerationConfig) Clone() *GenerationConfig {
	cp := *g
	cp.Stop = append([]string(nil), g.Stop...)
	return &cp
}

// DefaultGenerationConfig returns the built-in sampling template. The stop
// tokens keep the model from hallucinating tool observations: generation
// halts as soon as it begins a <tool_response> block.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		Temperature:     0.85,
		TopP:            0.95,
		PresencePenalty: 1.1,
		MaxTokens:       10000,
		Stop:            []string{"\n<tool_response>", "<tool_response>"},
	}
}

// DefaultLLMConfig returns the built-in LLM backend defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:        "http://127.0.0.1:6001/v1",
		Model:          "",
		RequestTimeout: 10 * time.Minute,
		MaxRetries:     3,
		Generation:     DefaultGenerationConfig(),
	}
}

// JudgeModelName returns the model used for judgment and answer calls.
func (c *LLMConfig) JudgeModelName() string {
	if c.JudgeModel != "" {
		return c.JudgeModel
	}
	return c.Model
}
