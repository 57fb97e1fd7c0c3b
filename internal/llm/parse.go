package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

var numberedLine = regexp.MustCompile(`(?m)^\s*\d+\.\s*(.+)`)

// ParseQuestions extracts questions from a numbered list. When the reply
// has no numbered lines, every non-blank line counts as a question with
// leading and trailing bullets removed. At most limit questions are
// returned; limit <= 0 means all.
func ParseQuestions(text string, limit int) []string {
	var qs []string
	for _, m := range numberedLine.FindAllStringSubmatch(text, -1) {
		if q := strings.TrimSpace(m[1]); q != "" {
			qs = append(qs, q)
		}
	}
	if len(qs) == 0 {
		for _, line := range strings.Split(text, "\n") {
			if q := strings.TrimSpace(strings.Trim(line, "-• \t\r")); q != "" {
				qs = append(qs, q)
			}
		}
	}
	if limit > 0 && len(qs) > limit {
		qs = qs[:limit]
	}
	return qs
}

// ParseReference decodes the model answer JSON. Malformed JSON is repaired
// once before giving up. A key_points value that is not a list yields no key
// points; non-string entries are dropped and the rest capped.
func ParseReference(raw string) (model.Reference, error) {
	txt := StripCodeFences(strings.TrimSpace(raw))

	var payload map[string]any
	if err := json.Unmarshal([]byte(txt), &payload); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(txt)
		if repairErr != nil {
			return model.Reference{}, fmt.Errorf("decode reference: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &payload); err != nil {
			return model.Reference{}, fmt.Errorf("decode repaired reference: %w", err)
		}
	}

	ref := model.Reference{KeyPoints: []string{}}
	if s, ok := payload["model_answer"].(string); ok {
		ref.ModelAnswer = strings.TrimSpace(s)
	}
	if list, ok := payload["key_points"].([]any); ok {
		for _, v := range list {
			if len(ref.KeyPoints) == prompts.MaxKeyPoints {
				break
			}
			if s, ok := v.(string); ok {
				ref.KeyPoints = append(ref.KeyPoints, s)
			}
		}
	}
	return ref, nil
}

// StripCodeFences removes a surrounding ```json ... ``` block.
func StripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
