package models

// PreviewLength is the number of runes of content shown as a citation preview.
const PreviewLength = 30

// Evidence is a single retrieved knowledge-base snippet. IDs are assigned
// per session in first-retrieval order, starting at 1.
type Evidence struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Preview returns the leading slice of the evidence content used in citation
// lists. The full content stays out of the event stream and is served by the
// citation endpoint instead.
func (e Evidence) Preview() string {
	r := []rune(e.Content)
	if len(r) <= PreviewLength {
		return e.Content
	}
	return string(r[:PreviewLength]) + "..."
}

// Citation is the compact reference emitted with the final answer.
type Citation struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// AnswerData carries the assembled final answer and its citation list.
type AnswerData struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Judgment is the structured verdict on whether accumulated evidence is
// sufficient to answer the question.
type Judgment struct {
	CanAnswer   bool    `json:"can_answer"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	MissingInfo string  `json:"missing_info,omitempty"`
}
