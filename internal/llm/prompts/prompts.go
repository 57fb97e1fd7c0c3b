// Package prompts renders the LLM prompts from embedded text templates.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const (
	// MaxPreviews is the number of page excerpts shown to the reference prompt.
	MaxPreviews = 6
	// PreviewRunes is the length of each page excerpt.
	PreviewRunes = 300
	// MaxKeyPoints caps the key points requested per question.
	MaxKeyPoints = 8

	maxAnswerRunes = 10000
)

var (
	studentAnswerRegex   = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	studentQuestionRegex = regexp.MustCompile(`(?i)</?\s*student-question\b[^>]*>`)
)

var difficultyGuides = map[model.Difficulty]string{
	model.DifficultyLow:    "mixing basic concept checks with simple factual questions",
	model.DifficultyMedium: "at a medium level focused on understanding and application",
	model.DifficultyHigh:   "at an advanced level focused on analysis and synthesis",
}

var kindLabels = map[model.QuestionKind]string{
	model.KindEssay:          "essay",
	model.KindMultipleChoice: "multiple-choice",
	model.KindTrueFalse:      "true/false",
}

var kindInstructions = map[model.QuestionKind]string{
	model.KindEssay:          "Every question must be an essay question.",
	model.KindMultipleChoice: "Every question must be multiple choice and include exactly 4 options.",
	model.KindTrueFalse:      "Every question must be a true/false (O/X) statement.",
}

var languages = map[string]string{
	"ko": "Korean",
	"en": "English",
}

// Set holds the parsed prompt templates.
type Set struct {
	tmpl     *template.Template
	language string
}

// Default returns the embedded templates producing text in lang.
func Default(lang string) (*Set, error) {
	return Load(templatesFS, lang)
}

// Load parses templates/*.tmpl from fsys.
func Load(fsys fs.FS, lang string) (*Set, error) {
	tmpl, err := template.New("prompts").Funcs(template.FuncMap{"json": toJSON}).ParseFS(fsys, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	for _, name := range []string{"questions.tmpl", "reference_system.tmpl", "reference.tmpl", "feedback.tmpl", "tutor.tmpl"} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("prompt template %s missing", name)
		}
	}
	language, ok := languages[lang]
	if !ok {
		language = languages["ko"]
	}
	return &Set{tmpl: tmpl, language: language}, nil
}

// Language is the human-readable output language.
func (s *Set) Language() string { return s.language }

// QuestionData holds template data for question generation.
type QuestionData struct {
	Text       string
	Num        int
	Difficulty model.Difficulty
	Kind       model.QuestionKind
	Style      string
	Exclude    []string
}

// Questions renders the question generation prompt.
func (s *Set) Questions(d QuestionData) (string, error) {
	kind := d.Kind
	if !kind.Valid() {
		kind = model.KindEssay
	}
	guide, ok := difficultyGuides[d.Difficulty]
	if !ok {
		guide = difficultyGuides[model.DifficultyMedium]
	}
	return s.render("questions.tmpl", map[string]any{
		"Text":            d.Text,
		"Num":             d.Num,
		"Difficulty":      d.Difficulty,
		"DifficultyGuide": guide,
		"KindLabel":       kindLabels[kind],
		"KindInstruction": kindInstructions[kind],
		"Style":           strings.TrimSpace(d.Style),
		"Exclude":         d.Exclude,
		"Language":        s.language,
	})
}

// Preview is one page excerpt shown to the reference prompt.
type Preview struct {
	File string `json:"file"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Previews cuts the first MaxPreviews pages to PreviewRunes each.
func Previews(pages []model.ContextPage) []Preview {
	out := make([]Preview, 0, min(len(pages), MaxPreviews))
	for _, p := range pages {
		if len(out) == MaxPreviews {
			break
		}
		out = append(out, Preview{File: p.SourceName, Page: p.PageNumber, Text: truncateRunes(p.Text, PreviewRunes)})
	}
	return out
}

// Reference renders the system and user prompts for the model answer request.
func (s *Set) Reference(question string, pages []model.ContextPage, difficulty model.Difficulty) (system, user string, err error) {
	system, err = s.render("reference_system.tmpl", nil)
	if err != nil {
		return "", "", err
	}
	user, err = s.render("reference.tmpl", map[string]any{
		"Question":     question,
		"Difficulty":   difficulty,
		"Previews":     Previews(pages),
		"MaxPreviews":  MaxPreviews,
		"MaxKeyPoints": MaxKeyPoints,
		"Language":     s.language,
	})
	return strings.TrimSpace(system), user, err
}

type feedbackItem struct {
	Prompt      string
	Answer      string
	Score       float64
	ModelAnswer string
}

// Feedback renders the overall feedback prompt for a graded batch.
func (s *Set) Feedback(questions []model.Question) (string, error) {
	items := make([]feedbackItem, 0, len(questions))
	for _, q := range questions {
		items = append(items, feedbackItem{
			Prompt:      q.PromptText,
			Answer:      SanitizeAnswer(q.AnswerText),
			Score:       q.ScoreOrZero(),
			ModelAnswer: q.Meta.ModelAnswer,
		})
	}
	return s.render("feedback.tmpl", map[string]any{"Items": items, "Language": s.language})
}

// Tutor renders the tutor prompt.
func (s *Set) Tutor(question, context string) (string, error) {
	question = studentQuestionRegex.ReplaceAllString(question, "")
	return s.render("tutor.tmpl", map[string]any{
		"Question": strings.TrimSpace(question),
		"Context":  strings.TrimSpace(context),
		"Language": s.language,
	})
}

func (s *Set) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// SanitizeAnswer strips tags that could break out of the answer block and
// caps very long answers.
func SanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		answer = truncateRunes(answer, maxAnswerRunes) + "\n\n[Answer truncated due to length]"
	}
	return answer
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func toJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
