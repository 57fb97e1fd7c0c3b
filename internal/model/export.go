package model

import "time"

// HistoryExport is the top-level structure for history export.
type HistoryExport struct {
	ExportedAt time.Time     `json:"exported_at" yaml:"exported_at"`
	Users      []UserHistory `json:"users" yaml:"users"`
}

// UserHistory holds one user's documents for export.
type UserHistory struct {
	Email     string           `json:"email" yaml:"email"`
	Name      string           `json:"name" yaml:"name"`
	School    string           `json:"school,omitempty" yaml:"school,omitempty"`
	Plan      Plan             `json:"plan" yaml:"plan"`
	QuotaUsed int              `json:"quota_used" yaml:"quota_used"`
	Documents []DocumentExport `json:"documents" yaml:"documents"`
}

// DocumentExport holds per-document data for export.
type DocumentExport struct {
	Filename  string           `json:"filename" yaml:"filename"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	Questions []QuestionExport `json:"questions" yaml:"questions"`
}

// QuestionExport holds per-question data for export.
type QuestionExport struct {
	BatchID     string       `json:"batch_id" yaml:"batch_id"`
	Prompt      string       `json:"prompt" yaml:"prompt"`
	Kind        QuestionKind `json:"kind" yaml:"kind"`
	Difficulty  Difficulty   `json:"difficulty" yaml:"difficulty"`
	Answer      string       `json:"answer" yaml:"answer"`
	Score       *float64     `json:"score,omitempty" yaml:"score,omitempty"`
	ModelAnswer string       `json:"model_answer" yaml:"model_answer"`
	KeyPoints   []string     `json:"key_points" yaml:"key_points"`
	Source      string       `json:"source,omitempty" yaml:"source,omitempty"`
	SourcePage  int          `json:"source_page,omitempty" yaml:"source_page,omitempty"`
}
