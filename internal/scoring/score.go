package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/model"
)

// Grading policy. These are product decisions, not tuning knobs.
const (
	WeightCoverage   = 0.6
	WeightSimilarity = 0.3
	WeightLength     = 0.1

	// LengthCeiling is the token count at which the length score saturates.
	LengthCeiling = 60.0

	// MinAnswerRunes is the shortest trimmed answer that gets graded at all.
	MinAnswerRunes = 4

	// MaxTotal is the top of the integer grade scale.
	MaxTotal = 10
)

// Weights blends the three partial scores into the total.
type Weights struct {
	Coverage   float64
	Similarity float64
	Length     float64
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Coverage:   WeightCoverage,
		Similarity: WeightSimilarity,
		Length:     WeightLength,
	}
}

// Score grades answer against modelAnswer and keyPoints with the default weights.
func Score(answer, modelAnswer string, keyPoints []string) (model.ScoreResult, error) {
	return ScoreWithWeights(answer, modelAnswer, keyPoints, DefaultWeights())
}

// ScoreWithWeights grades answer with explicit weights.
//
// Answers shorter than MinAnswerRunes after trimming get the zero result
// without any matching. An empty model answer or key point set is not an
// error: the corresponding partial score is simply 0.
func ScoreWithWeights(answer, modelAnswer string, keyPoints []string, w Weights) (model.ScoreResult, error) {
	if err := validText("answer", answer); err != nil {
		return model.ScoreResult{}, err
	}
	if err := validText("model answer", modelAnswer); err != nil {
		return model.ScoreResult{}, err
	}
	if err := validText("key point", keyPoints...); err != nil {
		return model.ScoreResult{}, err
	}

	a := strings.TrimSpace(answer)
	if utf8.RuneCountInString(a) < MinAnswerRunes {
		return model.ScoreResult{MatchedKeys: []string{}}, nil
	}

	count, matched := Coverage(a, keyPoints)
	coverage := CoverageRatio(count, len(keyPoints))
	sim := Similarity(a, modelAnswer)
	length := clamp(float64(CountTokens(a))/LengthCeiling, 0, 1)

	weighted := w.Coverage*coverage + w.Similarity*sim + w.Length*length
	total := int(math.RoundToEven(MaxTotal * weighted))
	total = max(0, min(MaxTotal, total))

	return model.ScoreResult{
		Total:       total,
		Coverage:    round3(coverage),
		Similarity:  round3(sim),
		LengthScore: round3(length),
		MatchedKeys: matched,
	}, nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
