package config

import "time"

// PipelineConfig controls request admission.
type PipelineConfig struct {
	// MaxConcurrentRequests is the admission-semaphore capacity: the number
	// of orchestrators allowed to run at once.
	MaxConcurrentRequests int

	// AdmissionTimeout is how long an incoming request waits for a slot
	// before receiving an in-band busy error.
	AdmissionTimeout time.Duration
}

// DefaultPipelineConfig returns the built-in admission defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		MaxConcurrentRequests: 3,
		AdmissionTimeout:      5 * time.Minute,
	}
}

// AgentConfig holds the per-session reasoning budgets.
type AgentConfig struct {
	// MaxRounds is the think→act→observe→judge round budget.
	MaxRounds int

	// WallClock is the per-session wall-clock cap. Expiry forces a timeout
	// terminal event at the next checkpoint.
	WallClock time.Duration

	// MaxContextTokens is the estimated input+output token budget. Exceeding
	// it forces an early transition to answer generation.
	MaxContextTokens int

	// ToolResultMaxBytes truncates oversized tool output before it enters
	// the transcript or the event stream.
	ToolResultMaxBytes int
}

// DefaultAgentConfig returns the built-in reasoning budgets.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		MaxRounds:          10,
		WallClock:          150 * time.Minute,
		MaxContextTokens:   108 * 1024,
		ToolResultMaxBytes: 16 * 1024,
	}
}

// CitationConfig controls the citation store retention.
type CitationConfig struct {
	// TTL is how long citations stay resolvable after their session reaches
	// a terminal state.
	TTL time.Duration

	// SweepInterval is the period of the background eviction sweep.
	SweepInterval time.Duration
}

// DefaultCitationConfig returns the built-in citation retention defaults.
func DefaultCitationConfig() *CitationConfig {
	return &CitationConfig{
		TTL:           time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}
