// Package tools routes parsed tool calls to the retrieval, classification,
// code execution, and judgment helpers, and normalizes their results to text
// for the reasoning transcript.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medrag/deepquery/pkg/config"
	"github.com/medrag/deepquery/pkg/models"
)

// RetrievalClient talks to the knowledge-base retrieval service.
type RetrievalClient struct {
	cfg    *config.RetrievalConfig
	client *http.Client
	logger *slog.Logger
}

// NewRetrievalClient builds the retrieval service client.
func NewRetrievalClient(cfg *config.RetrievalConfig, logger *slog.Logger) *RetrievalClient {
	return &RetrievalClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With("component", "retrieval"),
	}
}

type retrievalRequest struct {
	Question               string   `json:"question"`
	DatasetIDs             []string `json:"dataset_ids"`
	DocumentIDs            []string `json:"document_ids"`
	SimilarityThreshold    float64  `json:"similarity_threshold"`
	VectorSimilarityWeight float64  `json:"vector_similarity_weight"`
	TopK                   int      `json:"top_k"`
	Keyword                bool     `json:"keyword"`
}

type retrievalResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Chunks []struct {
			Content    string  `json:"content"`
			Similarity float64 `json:"similarity"`
			DocumentID string  `json:"document_id"`
			Highlight  string  `json:"highlight"`
		} `json:"chunks"`
		DocAggs []struct {
			DocID   string `json:"doc_id"`
			DocName string `json:"doc_name"`
		} `json:"doc_aggs"`
		Total int `json:"total"`
	} `json:"data"`
}

// Retrieve searches the given datasets and returns the evidence records plus
// the formatted text placed into the transcript. An empty dataset list falls
// back to the default department's dataset.
func (r *RetrievalClient) Retrieve(ctx context.Context, query string, datasetIDs []string, topK int) ([]models.Evidence, string, error) {
	if len(datasetIDs) == 0 {
		datasetIDs = r.cfg.DefaultDatasetIDs()
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	reqBody := retrievalRequest{
		Question:               query,
		DatasetIDs:             datasetIDs,
		DocumentIDs:            []string{},
		SimilarityThreshold:    r.cfg.SimilarityThreshold,
		VectorSimilarityWeight: r.cfg.VectorWeight,
		TopK:                   topK,
		Keyword:                r.cfg.Keyword,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("marshal retrieval request: %w", err)
	}

	url := strings.TrimRight(r.cfg.BaseURL, "/") + "/api/v1/retrieval"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create retrieval request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read retrieval response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("retrieval service returned %d", resp.StatusCode)
	}

	var parsed retrievalResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, "", fmt.Errorf("parse retrieval response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, "", fmt.Errorf("retrieval service error: %s", parsed.Message)
	}

	evidence, text := formatResults(&parsed, query)
	r.logger.Info("retrieval completed",
		"query", query, "datasets", len(datasetIDs), "chunks", len(evidence))
	return evidence, text, nil
}

// formatResults renders the chunks as the numbered text block the model
// reads, resolving document names through the doc_aggs mapping.
func formatResults(resp *retrievalResponse, query string) ([]models.Evidence, string) {
	total := resp.Data.Total
	if total == 0 && len(resp.Data.Chunks) == 0 {
		return nil, fmt.Sprintf("No relevant documents found for question: %q", query)
	}

	docNames := make(map[string]string, len(resp.Data.DocAggs))
	for _, doc := range resp.Data.DocAggs {
		docNames[doc.DocID] = doc.DocName
	}

	var evidence []models.Evidence
	var b strings.Builder
	fmt.Fprintf(&b, "Retrieval Results for %q (Found %d relevant chunks):\n\n", query, total)
	for i, chunk := range resp.Data.Chunks {
		name := docNames[chunk.DocumentID]
		if name == "" {
			name = "Unknown Document"
		}
		fmt.Fprintf(&b, "[%d] Document: %s\n", i+1, name)
		fmt.Fprintf(&b, "Similarity: %.3f\n", chunk.Similarity)
		fmt.Fprintf(&b, "Content: %s\n", chunk.Content)
		if chunk.Highlight != "" && chunk.Highlight != chunk.Content {
			fmt.Fprintf(&b, "Highlight: %s\n", chunk.Highlight)
		}
		b.WriteString("\n---\n\n")

		evidence = append(evidence, models.Evidence{
			Title:      name,
			Content:    chunk.Content,
			Similarity: chunk.Similarity,
		})
	}
	return evidence, strings.TrimSpace(b.String())
}
