package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/medrag/deepquery/pkg/agent/prompt"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/llm"
	"github.com/medrag/deepquery/pkg/models"
)

// Classifier maps a medical question to the departments it concerns, and
// from there to dataset IDs. Any failure falls back to the default
// department so retrieval always has somewhere to search.
type Classifier struct {
	llm    llm.Client
	cfg    *config.RetrievalConfig
	llmCfg *config.LLMConfig
	logger *slog.Logger
}

// NewClassifier builds the department classifier.
func NewClassifier(client llm.Client, cfg *config.RetrievalConfig, llmCfg *config.LLMConfig, logger *slog.Logger) *Classifier {
	return &Classifier{
		llm:    client,
		cfg:    cfg,
		llmCfg: llmCfg,
		logger: logger.With("component", "classifier"),
	}
}

// Classify returns the departments for the question and their dataset IDs.
func (c *Classifier) Classify(ctx context.Context, question string) (departments, datasetIDs []string) {
	if strings.TrimSpace(question) == "" {
		return nil, c.cfg.DefaultDatasetIDs()
	}

	gen := c.llmCfg.Generation.Clone()
	gen.Temperature = 0.3
	gen.MaxTokens = 512
	gen.Stop = nil

	content, err := c.llm.Chat(ctx, &llm.ChatRequest{
		Model: c.llmCfg.JudgeModelName(),
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "You are a medical department triage assistant."},
			{Role: models.RoleUser, Content: prompt.Classification(question)},
		},
		Generation: gen,
	})
	if err != nil {
		c.logger.Warn("department classification failed, using default department",
			"default", config.DefaultDepartment, "error", err)
		return []string{config.DefaultDepartment}, c.cfg.DefaultDatasetIDs()
	}

	departments = parseDepartments(content)
	if len(departments) == 0 {
		c.logger.Warn("no recognizable department in classification response, using default",
			"response", content, "default", config.DefaultDepartment)
		return []string{config.DefaultDepartment}, c.cfg.DefaultDatasetIDs()
	}

	seen := make(map[string]bool)
	for _, dept := range departments {
		id, ok := c.cfg.DatasetIDs[dept]
		if ok && !seen[id] {
			seen[id] = true
			datasetIDs = append(datasetIDs, id)
		}
	}
	if len(datasetIDs) == 0 {
		datasetIDs = c.cfg.DefaultDatasetIDs()
	}
	c.logger.Info("question classified", "departments", departments)
	return departments, datasetIDs
}

var knownDepartments = []string{
	config.DeptNephrology,
	config.DeptOtolaryngology,
	config.DeptCardiology,
	config.DeptEndocrinology,
}

// parseDepartments extracts department names from the model's reply,
// tolerating numbering, extra prose, and partial names.
func parseDepartments(content string) []string {
	content = strings.ToLower(strings.TrimSpace(content))
	if content == "" {
		return nil
	}

	var out []string
	add := func(dept string) {
		for _, d := range out {
			if d == dept {
				return
			}
		}
		out = append(out, dept)
	}

	// Direct name match anywhere in the reply.
	for _, dept := range knownDepartments {
		if strings.Contains(content, dept) {
			add(dept)
		}
	}
	if len(out) > 0 {
		return out
	}

	// Comma-separated fragments, matched loosely in both directions.
	for _, part := range strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	}) {
		part = strings.TrimSpace(strings.TrimLeft(part, "0123456789. )"))
		if part == "" {
			continue
		}
		for _, dept := range knownDepartments {
			if strings.Contains(dept, part) || strings.Contains(part, dept) {
				add(dept)
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	// Stem match, catching replies like "cardio" or "nephrologist".
	for _, dept := range knownDepartments {
		stem := strings.TrimSuffix(dept, "ology")
		if stem != dept && strings.Contains(content, stem) {
			add(dept)
		}
	}
	return out
}
