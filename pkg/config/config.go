// Package config holds the process configuration, loaded once at startup
// from environment variables. All sub-configs are treated as immutable after
// Load; anything a request needs to mutate (the generation config) is deep
// copied first.
package config

// Config is the umbrella configuration object returned by Load and threaded
// through the application.
type Config struct {
	HTTPPort string

	Pipeline  *PipelineConfig
	Agent     *AgentConfig
	LLM       *LLMConfig
	Retrieval *RetrievalConfig
	Sandbox   *SandboxConfig
	Citations *CitationConfig
}

// Default returns the built-in configuration used when no environment
// overrides are present.
func Default() *Config {
	return &Config{
		HTTPPort:  "8086",
		Pipeline:  DefaultPipelineConfig(),
		Agent:     DefaultAgentConfig(),
		LLM:       DefaultLLMConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Sandbox:   DefaultSandboxConfig(),
		Citations: DefaultCitationConfig(),
	}
}
