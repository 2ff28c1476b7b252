package agent

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/medrag/deepquery/pkg/models"
)

// TokenEstimator estimates the transcript's token footprint against the
// context budget. The number only needs to be roughly right: it gates the
// early transition to answer generation, not billing.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator builds the estimator. When the encoding cannot be
// initialized (offline start without a cached BPE file) it falls back to a
// bytes/4 heuristic.
func NewTokenEstimator(logger *slog.Logger) *TokenEstimator {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		logger.Warn("token encoding unavailable, using byte heuristic", "error", err)
		return &TokenEstimator{}
	}
	return &TokenEstimator{enc: enc}
}

// Count estimates the token total of the transcript.
func (e *TokenEstimator) Count(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		if e.enc != nil {
			total += len(e.enc.Encode(m.Content, nil, nil))
		} else {
			total += len(m.Content) / 4
		}
		// Role tag and message framing overhead.
		total += 4
	}
	return total
}
