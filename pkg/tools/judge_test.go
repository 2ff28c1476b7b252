package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrag/deepquery/pkg/config"
)

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantCanAnswer bool
		wantConf      float64
	}{
		{
			name:          "plain json",
			content:       `{"can_answer": true, "confidence": 0.85, "reason": "sufficient"}`,
			wantCanAnswer: true,
			wantConf:      0.85,
		},
		{
			name:          "json fenced in markdown",
			content:       "```json\n{\"can_answer\": false, \"confidence\": 0.2, \"reason\": \"off topic\", \"missing_info\": \"dosage data\"}\n```",
			wantCanAnswer: false,
			wantConf:      0.2,
		},
		{
			name:          "bare fence",
			content:       "```\n{\"can_answer\": true, \"confidence\": 0.7, \"reason\": \"ok\"}\n```",
			wantCanAnswer: true,
			wantConf:      0.7,
		},
		{
			name:          "free text with embedded fields",
			content:       `The evidence looks solid. "can_answer": true, "confidence": 0.66, "reason": "guideline match"`,
			wantCanAnswer: true,
			wantConf:      0.66,
		},
		{
			name:          "unparseable text",
			content:       "I am not sure what to make of this.",
			wantCanAnswer: false,
			wantConf:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := parseJudgment(tt.content)
			require.NotNil(t, j)
			assert.Equal(t, tt.wantCanAnswer, j.CanAnswer)
			assert.Equal(t, tt.wantConf, j.Confidence)
			assert.NotEmpty(t, j.Reason)
		})
	}
}

func TestJudgmentMissingInfoExtraction(t *testing.T) {
	j := parseJudgment(`broken json "can_answer": false, "missing_info": "renal dosing thresholds"`)
	assert.False(t, j.CanAnswer)
	assert.Equal(t, "renal dosing thresholds", j.MissingInfo)
}

func TestJudgeStreamsReasoning(t *testing.T) {
	reply := `{"can_answer": true, "confidence": 0.9, "reason": "covered"}`
	judge := NewJudge(&fakeLLM{reply: reply}, config.DefaultLLMConfig(), discardLogger())

	var streamed string
	j, err := judge.Judge(context.Background(), "q", "evidence", func(delta string) {
		streamed += delta
	})
	require.NoError(t, err)
	assert.True(t, j.CanAnswer)
	assert.Equal(t, reply, streamed)
}

func TestJudgeBackendFailure(t *testing.T) {
	judge := NewJudge(&fakeLLM{err: assert.AnError}, config.DefaultLLMConfig(), discardLogger())

	_, err := judge.Judge(context.Background(), "q", "evidence", nil)
	assert.ErrorIs(t, err, assert.AnError)
}
