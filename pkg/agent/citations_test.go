package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrag/deepquery/pkg/models"
)

func evidenceFixture(n int) []models.Evidence {
	out := make([]models.Evidence, n)
	for i := range out {
		out[i] = models.Evidence{
			Title:   fmt.Sprintf("Doc %d", i+1),
			Content: fmt.Sprintf("Content of document %d", i+1),
		}
	}
	return out
}

func TestNumberEvidence(t *testing.T) {
	numbered := NumberEvidence(evidenceFixture(3))
	require.Len(t, numbered, 3)
	for i, ev := range numbered {
		assert.Equal(t, i+1, ev.ID)
	}
}

func TestNumberEvidenceCap(t *testing.T) {
	numbered := NumberEvidence(evidenceFixture(15))
	assert.Len(t, numbered, MaxCitations)
	assert.Equal(t, MaxCitations, numbered[len(numbered)-1].ID)
}

func TestSourcesContent(t *testing.T) {
	s := SourcesContent(NumberEvidence(evidenceFixture(2)))
	assert.Contains(t, s, "[1] Doc 1\nContent of document 1")
	assert.Contains(t, s, "[2] Doc 2\nContent of document 2")
}

func TestAssembleCitationsOrderAndDedupe(t *testing.T) {
	numbered := NumberEvidence(evidenceFixture(3))
	answer := "Second source first [2], then the first [1], and [2] again."

	citations := AssembleCitations(answer, numbered)
	require.Len(t, citations, 2)
	assert.Equal(t, 2, citations[0].ID)
	assert.Equal(t, 1, citations[1].ID)
	assert.Equal(t, "Doc 2", citations[0].Title)
}

func TestAssembleCitationsIgnoresUnknownMarkers(t *testing.T) {
	numbered := NumberEvidence(evidenceFixture(2))
	citations := AssembleCitations("Cited [1] and hallucinated [7].", numbered)
	require.Len(t, citations, 1)
	assert.Equal(t, 1, citations[0].ID)
}

func TestAssembleCitationsFallsBackToAll(t *testing.T) {
	numbered := NumberEvidence(evidenceFixture(2))
	citations := AssembleCitations("No markers in this answer.", numbered)
	assert.Len(t, citations, 2)
}

func TestAssembleCitationsPreview(t *testing.T) {
	ev := []models.Evidence{{Title: "Long Doc", Content: "abcdefghijklmnopqrstuvwxyzABCDEFGHIJ"}}
	numbered := NumberEvidence(ev)
	citations := AssembleCitations("[1]", numbered)
	require.Len(t, citations, 1)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyzABCD...", citations[0].Preview)
}
