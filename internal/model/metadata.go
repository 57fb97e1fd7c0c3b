package model

import (
	"encoding/json"
	"fmt"
)

// ContextPage is the extracted text of one page of a source PDF.
type ContextPage struct {
	SourceName string `json:"source_name"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// SourceAttribution names the page that best supports a question.
// An empty attribution has nil fields and MatchScore -1.
type SourceAttribution struct {
	SourceName *string `json:"source_name"`
	PageNumber *int    `json:"page_number"`
	MatchScore float64 `json:"match_score"`
}

// NoSource is the attribution returned when no page was considered.
func NoSource() SourceAttribution {
	return SourceAttribution{MatchScore: -1}
}

// Found reports whether an attribution was computed, however weak.
func (s SourceAttribution) Found() bool {
	return s.MatchScore >= 0 && s.SourceName != nil
}

// Name returns the source file name or "".
func (s SourceAttribution) Name() string {
	if s.SourceName == nil {
		return ""
	}
	return *s.SourceName
}

// Page returns the page number or 0.
func (s SourceAttribution) Page() int {
	if s.PageNumber == nil {
		return 0
	}
	return *s.PageNumber
}

// ScoreResult is the outcome of grading one answer.
type ScoreResult struct {
	Total       int      `json:"total"`
	Coverage    float64  `json:"coverage"`
	Similarity  float64  `json:"similarity"`
	LengthScore float64  `json:"length_score"`
	MatchedKeys []string `json:"matched_keys"`
}

// Reference is the generated model answer and key points for a question.
// Both fields may be empty when generation failed.
type Reference struct {
	ModelAnswer string   `json:"model_answer"`
	KeyPoints   []string `json:"key_points"`
}

// QuestionMetadata is the per-question data cached at generation time.
// It is serialized to JSON only at the store boundary.
type QuestionMetadata struct {
	BatchID     string             `json:"batch_id"`
	ModelAnswer string             `json:"model_answer"`
	KeyPoints   []string           `json:"key_points"`
	Source      *SourceAttribution `json:"source"`
}

// NeedsReference reports whether the cached reference is missing and must
// be regenerated before grading. A nil KeyPoints slice means the key points
// were never stored; an empty one means the generator produced none.
func (m QuestionMetadata) NeedsReference() bool {
	return m.ModelAnswer == "" || m.KeyPoints == nil
}

// WithReference returns a copy carrying ref and src.
func (m QuestionMetadata) WithReference(ref Reference, src *SourceAttribution) QuestionMetadata {
	m.ModelAnswer = ref.ModelAnswer
	m.KeyPoints = ref.KeyPoints
	if m.KeyPoints == nil {
		m.KeyPoints = []string{}
	}
	m.Source = src
	return m
}

// MarshalMetadata encodes metadata for the meta_json column.
func MarshalMetadata(m QuestionMetadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal question metadata: %w", err)
	}
	return string(b), nil
}

// UnmarshalMetadata decodes the meta_json column. Empty input yields zero metadata.
func UnmarshalMetadata(raw string) (QuestionMetadata, error) {
	var m QuestionMetadata
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, fmt.Errorf("unmarshal question metadata: %w", err)
	}
	return m, nil
}
