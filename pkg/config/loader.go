package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Load builds the configuration from environment variables, starting from
// the built-in defaults. Every variable is optional; malformed values are an
// error rather than a silent fallback.
func Load() (*Config, error) {
	cfg := Default()

	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)

	var err error
	if cfg.Pipeline.MaxConcurrentRequests, err = getEnvInt("MAX_CONCURRENT_REQUESTS", cfg.Pipeline.MaxConcurrentRequests); err != nil {
		return nil, err
	}
	if cfg.Pipeline.AdmissionTimeout, err = getEnvSeconds("ADMISSION_TIMEOUT_SECONDS", cfg.Pipeline.AdmissionTimeout); err != nil {
		return nil, err
	}

	if cfg.Agent.MaxRounds, err = getEnvInt("MAX_ROUNDS", cfg.Agent.MaxRounds); err != nil {
		return nil, err
	}
	if cfg.Agent.WallClock, err = getEnvSeconds("REQUEST_WALL_CLOCK_SECONDS", cfg.Agent.WallClock); err != nil {
		return nil, err
	}
	if cfg.Agent.MaxContextTokens, err = getEnvInt("MAX_CONTEXT_TOKENS", cfg.Agent.MaxContextTokens); err != nil {
		return nil, err
	}
	if cfg.Agent.ToolResultMaxBytes, err = getEnvInt("TOOL_RESULT_MAX_BYTES", cfg.Agent.ToolResultMaxBytes); err != nil {
		return nil, err
	}

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.JudgeModel = getEnv("JUDGE_MODEL", cfg.LLM.JudgeModel)
	if cfg.LLM.RequestTimeout, err = getEnvSeconds("LLM_REQUEST_TIMEOUT_SECONDS", cfg.LLM.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxRetries, err = getEnvInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.LLM.Generation.Temperature, err = getEnvFloat("LLM_TEMPERATURE", cfg.LLM.Generation.Temperature); err != nil {
		return nil, err
	}
	if cfg.LLM.Generation.TopP, err = getEnvFloat("LLM_TOP_P", cfg.LLM.Generation.TopP); err != nil {
		return nil, err
	}
	if cfg.LLM.Generation.PresencePenalty, err = getEnvFloat("LLM_PRESENCE_PENALTY", cfg.LLM.Generation.PresencePenalty); err != nil {
		return nil, err
	}
	if cfg.LLM.Generation.MaxTokens, err = getEnvInt("LLM_MAX_TOKENS", cfg.LLM.Generation.MaxTokens); err != nil {
		return nil, err
	}

	cfg.Retrieval.BaseURL = getEnv("RETRIEVAL_BASE_URL", cfg.Retrieval.BaseURL)
	cfg.Retrieval.APIKey = getEnv("RETRIEVAL_API_KEY", cfg.Retrieval.APIKey)
	if cfg.Retrieval.TopK, err = getEnvInt("RETRIEVAL_TOP_K", cfg.Retrieval.TopK); err != nil {
		return nil, err
	}
	if cfg.Retrieval.SimilarityThreshold, err = getEnvFloat("RETRIEVAL_SIMILARITY_THRESHOLD", cfg.Retrieval.SimilarityThreshold); err != nil {
		return nil, err
	}
	if cfg.Retrieval.VectorWeight, err = getEnvFloat("RETRIEVAL_VECTOR_WEIGHT", cfg.Retrieval.VectorWeight); err != nil {
		return nil, err
	}
	if cfg.Retrieval.RequestTimeout, err = getEnvSeconds("RETRIEVAL_TIMEOUT_SECONDS", cfg.Retrieval.RequestTimeout); err != nil {
		return nil, err
	}
	loadDatasetOverrides(cfg.Retrieval)

	cfg.Sandbox.URL = getEnv("SANDBOX_URL", cfg.Sandbox.URL)
	if cfg.Sandbox.Timeout, err = getEnvSeconds("SANDBOX_TIMEOUT_SECONDS", cfg.Sandbox.Timeout); err != nil {
		return nil, err
	}

	if cfg.Citations.TTL, err = getEnvSeconds("CITATION_TTL_SECONDS", cfg.Citations.TTL); err != nil {
		return nil, err
	}
	if cfg.Citations.SweepInterval, err = getEnvSeconds("CITATION_SWEEP_INTERVAL_SECONDS", cfg.Citations.SweepInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDatasetOverrides lets each department dataset be replaced via
// DATASET_ID_<DEPARTMENT>.
func loadDatasetOverrides(rc *RetrievalConfig) {
	for dept := range rc.DatasetIDs {
		key := "DATASET_ID_" + strings.ToUpper(dept)
		if v := os.Getenv(key); v != "" {
			rc.DatasetIDs[dept] = v
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return time.Duration(n) * time.Second, nil
}
