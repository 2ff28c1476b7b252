package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8086", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrentRequests)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.AdmissionTimeout)
	assert.Equal(t, 10, cfg.Agent.MaxRounds)
	assert.Equal(t, 150*time.Minute, cfg.Agent.WallClock)
	assert.Equal(t, 108*1024, cfg.Agent.MaxContextTokens)
	assert.Equal(t, time.Hour, cfg.Citations.TTL)
	assert.Equal(t, []string{"\n<tool_response>", "<tool_response>"}, cfg.LLM.Generation.Stop)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "5")
	t.Setenv("MAX_ROUNDS", "4")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("CITATION_TTL_SECONDS", "120")
	t.Setenv("DATASET_ID_CARDIOLOGY", "override-dataset")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentRequests)
	assert.Equal(t, 4, cfg.Agent.MaxRounds)
	assert.Equal(t, 0.2, cfg.LLM.Generation.Temperature)
	assert.Equal(t, 2*time.Minute, cfg.Citations.TTL)
	assert.Equal(t, "override-dataset", cfg.Retrieval.DatasetIDs[DeptCardiology])
}

func TestLoadMalformed(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "ten")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ROUNDS")
}

func TestGenerationConfigClone(t *testing.T) {
	base := DefaultLLMConfig().Generation
	cp := base.Clone()
	cp.Temperature = 0.1
	cp.Stop[0] = "changed"

	assert.Equal(t, 0.85, base.Temperature)
	assert.Equal(t, "\n<tool_response>", base.Stop[0])
}

func TestJudgeModelFallback(t *testing.T) {
	c := &LLMConfig{Model: "base"}
	assert.Equal(t, "base", c.JudgeModelName())

	c.JudgeModel = "judge"
	assert.Equal(t, "judge", c.JudgeModelName())
}

func TestDefaultDatasetIDs(t *testing.T) {
	rc := DefaultRetrievalConfig()
	ids := rc.DefaultDatasetIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, rc.DatasetIDs[DeptEndocrinology], ids[0])
}
