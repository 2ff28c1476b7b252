package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medrag/deepquery/pkg/config"
)

func TestParseDepartments(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"single", "endocrinology", []string{config.DeptEndocrinology}},
		{"multiple comma separated", "cardiology, nephrology", []string{config.DeptNephrology, config.DeptCardiology}},
		{"with prose", "This question belongs to the Cardiology department.", []string{config.DeptCardiology}},
		{"numbered list", "1. otolaryngology\n2. endocrinology", []string{config.DeptOtolaryngology, config.DeptEndocrinology}},
		{"stem only", "cardi", []string{config.DeptCardiology}},
		{"unrecognized", "dermatology", nil},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDepartments(tt.content))
		})
	}
}

func newTestClassifier(client *fakeLLM) *Classifier {
	return NewClassifier(client, config.DefaultRetrievalConfig(), config.DefaultLLMConfig(), discardLogger())
}

func TestClassifyMapsDatasets(t *testing.T) {
	c := newTestClassifier(&fakeLLM{reply: "nephrology, cardiology"})

	departments, datasets := c.Classify(context.Background(), "kidney function in heart failure")
	assert.Equal(t, []string{config.DeptNephrology, config.DeptCardiology}, departments)

	rcfg := config.DefaultRetrievalConfig()
	assert.Equal(t, []string{
		rcfg.DatasetIDs[config.DeptNephrology],
		rcfg.DatasetIDs[config.DeptCardiology],
	}, datasets)
}

func TestClassifyFallsBackOnBackendError(t *testing.T) {
	c := newTestClassifier(&fakeLLM{err: assert.AnError})

	departments, datasets := c.Classify(context.Background(), "some question")
	assert.Equal(t, []string{config.DefaultDepartment}, departments)
	assert.Equal(t, config.DefaultRetrievalConfig().DefaultDatasetIDs(), datasets)
}

func TestClassifyFallsBackOnGarbageReply(t *testing.T) {
	c := newTestClassifier(&fakeLLM{reply: "I cannot classify this."})

	departments, _ := c.Classify(context.Background(), "some question")
	assert.Equal(t, []string{config.DefaultDepartment}, departments)
}

func TestClassifyEmptyQuestion(t *testing.T) {
	c := newTestClassifier(&fakeLLM{reply: "cardiology"})

	departments, datasets := c.Classify(context.Background(), "  ")
	assert.Nil(t, departments)
	assert.Equal(t, config.DefaultRetrievalConfig().DefaultDatasetIDs(), datasets)
}
