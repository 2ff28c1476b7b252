package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/medrag/deepquery/pkg/agent/prompt"
	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/llm"
	"github.com/medrag/deepquery/pkg/models"
)

// Judge asks the model whether the accumulated evidence suffices to answer
// the question. Malformed judge output is recovered field by field instead
// of failing the round.
type Judge struct {
	llm    llm.Client
	cfg    *config.LLMConfig
	logger *slog.Logger
}

// NewJudge builds the sufficiency judge.
func NewJudge(client llm.Client, cfg *config.LLMConfig, logger *slog.Logger) *Judge {
	return &Judge{
		llm:    client,
		cfg:    cfg,
		logger: logger.With("component", "judge"),
	}
}

// Judge evaluates the evidence. When onDelta is non-nil the judge's raw
// reasoning is streamed through it as it arrives.
func (j *Judge) Judge(ctx context.Context, question, evidence string, onDelta func(string)) (*models.Judgment, error) {
	gen := j.cfg.Generation.Clone()
	gen.Temperature = 0.3
	gen.Stop = nil

	req := &llm.ChatRequest{
		Model: j.cfg.JudgeModelName(),
		Messages: []models.Message{
			{Role: models.RoleUser, Content: prompt.Judgment(question, evidence)},
		},
		Generation: gen,
	}

	var content string
	if onDelta == nil {
		text, err := j.llm.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		content = text
	} else {
		chunks, err := j.llm.StreamChat(ctx, req)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for chunk := range chunks {
			switch ch := chunk.(type) {
			case *llm.TextChunk:
				b.WriteString(ch.Content)
				onDelta(ch.Content)
			case *llm.ErrorChunk:
				return nil, ch.Err
			}
		}
		content = b.String()
	}

	judgment := parseJudgment(content)
	j.logger.Info("sufficiency judged",
		"can_answer", judgment.CanAnswer, "confidence", judgment.Confidence)
	return judgment, nil
}

// parseJudgment decodes the judge's reply: direct JSON first, then with
// markdown fences stripped, finally field-by-field regex extraction from
// free text.
func parseJudgment(content string) *models.Judgment {
	var j models.Judgment
	if err := json.Unmarshal([]byte(content), &j); err == nil {
		return &j
	}

	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if err := json.Unmarshal([]byte(cleaned), &j); err == nil {
		return &j
	}

	return extractJudgment(content)
}

var (
	canAnswerRe  = regexp.MustCompile(`(?i)"can_answer"\s*:\s*(true|false)`)
	confidenceRe = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	reasonRe     = regexp.MustCompile(`"reason"\s*:\s*"([^"]*)"`)
	missingRe    = regexp.MustCompile(`"missing_info"\s*:\s*"([^"]*)"`)
)

func extractJudgment(text string) *models.Judgment {
	j := &models.Judgment{}

	if m := canAnswerRe.FindStringSubmatch(text); m != nil {
		j.CanAnswer = strings.EqualFold(m[1], "true")
	} else {
		j.CanAnswer = strings.Contains(strings.ToLower(text), "true")
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			j.Confidence = f
		}
	}
	if m := reasonRe.FindStringSubmatch(text); m != nil {
		j.Reason = m[1]
	} else {
		j.Reason = strings.TrimSpace(text)
	}
	if m := missingRe.FindStringSubmatch(text); m != nil {
		j.MissingInfo = m[1]
	}
	return j
}
