package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/medrag/deepquery/pkg/models"
)

// MaxCitations caps the reference list presented to the answer model and
// stored for lookup.
const MaxCitations = 10

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// NumberEvidence assigns sequential citation IDs to the accumulated
// evidence, capped at MaxCitations. The IDs match the numbering used in the
// answer prompt's source list.
func NumberEvidence(evidence []models.Evidence) []models.Evidence {
	if len(evidence) > MaxCitations {
		evidence = evidence[:MaxCitations]
	}
	out := make([]models.Evidence, len(evidence))
	for i, ev := range evidence {
		ev.ID = i + 1
		out[i] = ev
	}
	return out
}

// SourcesContent renders the numbered evidence as the source block of the
// answer prompt.
func SourcesContent(evidence []models.Evidence) string {
	var b strings.Builder
	for _, ev := range evidence {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", ev.ID, ev.Title, ev.Content)
	}
	return strings.TrimSpace(b.String())
}

// AssembleCitations scans the answer for [n] markers and intersects them
// with the numbered evidence, producing a deduplicated citation list in
// first-appearance order. An answer that cites nothing explicitly gets the
// whole evidence list, so the client can always show sources.
func AssembleCitations(answer string, evidence []models.Evidence) []models.Citation {
	byID := make(map[int]models.Evidence, len(evidence))
	for _, ev := range evidence {
		byID[ev.ID] = ev
	}

	var out []models.Citation
	seen := make(map[int]bool)
	for _, m := range citationMarkerRe.FindAllStringSubmatch(answer, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		ev, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = true
		out = append(out, models.Citation{ID: ev.ID, Title: ev.Title, Preview: ev.Preview()})
	}
	if out != nil {
		return out
	}

	for _, ev := range evidence {
		out = append(out, models.Citation{ID: ev.ID, Title: ev.Title, Preview: ev.Preview()})
	}
	return out
}
