package config

import "time"

// Medical departments recognized by the dataset classifier.
const (
	DeptNephrology     = "nephrology"
	DeptOtolaryngology = "otolaryngology"
	DeptCardiology     = "cardiology"
	DeptEndocrinology  = "endocrinology"
)

// DefaultDepartment is used when classification fails or yields nothing.
const DefaultDepartment = DeptEndocrinology

// RetrievalConfig describes the knowledge-base retrieval service and the
// department→dataset routing table.
type RetrievalConfig struct {
	BaseURL string
	APIKey  string

	TopK                int
	SimilarityThreshold float64
	VectorWeight        float64
	Keyword             bool

	RequestTimeout time.Duration

	// DatasetIDs maps a department name to its knowledge-base dataset.
	DatasetIDs map[string]string
}

// DefaultRetrievalConfig returns the built-in retrieval defaults.
func DefaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		BaseURL:             "http://127.0.0.1:8080",
		TopK:                4,
		SimilarityThreshold: 0.6,
		VectorWeight:        0.7,
		Keyword:             true,
		RequestTimeout:      30 * time.Second,
		DatasetIDs: map[string]string{
			DeptNephrology:     "654c10c2b53d11f0ba4f0242c0a8a006",
			DeptOtolaryngology: "0da740b4b53111f0b80b0242c0a87006",
			DeptCardiology:     "5732b33ab4c311f098ff0242c0a87006",
			DeptEndocrinology:  "1c9c4d369ce411f093700242ac170006",
		},
	}
}

// DefaultDatasetIDs returns the dataset list used when no department can be
// inferred.
func (c *RetrievalConfig) DefaultDatasetIDs() []string {
	if id, ok := c.DatasetIDs[DefaultDepartment]; ok {
		return []string{id}
	}
	return nil
}

// SandboxConfig describes the code execution service.
type SandboxConfig struct {
	URL string

	// Timeout is the hard wall-clock cap on one execution.
	Timeout time.Duration
}

// DefaultSandboxConfig returns the built-in sandbox defaults.
func DefaultSandboxConfig() *SandboxConfig {
	return &SandboxConfig{
		URL:     "http://127.0.0.1:8194/execute",
		Timeout: 60 * time.Second,
	}
}
