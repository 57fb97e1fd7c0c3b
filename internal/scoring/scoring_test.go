package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examgen/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"  Hello World \n", "hello world"},
		{"H2O", "h2o"},
		{" 물은 H2O이다 ", "물은 h2o이다"},
		{"ÄÖÜ", "äöü"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ...  ", 0},
		{"one two three", 3},
		{"물은 H2O이다 정답", 3},
		{"well-known, state-of-the-art", 6},
		{"x1,y2;z3", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountTokens(tt.in), "CountTokens(%q)", tt.in)
	}
}

func TestCoverage(t *testing.T) {
	t.Run("case and space insensitive", func(t *testing.T) {
		n, matched := Coverage("Water is H2O and boils at 100C", []string{" h2o ", "BOILS", "ice"})
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{" h2o ", "BOILS"}, matched)
	})

	t.Run("keeps input order and duplicates", func(t *testing.T) {
		n, matched := Coverage("alpha beta", []string{"beta", "alpha", "beta"})
		assert.Equal(t, 3, n)
		assert.Equal(t, []string{"beta", "alpha", "beta"}, matched)
	})

	t.Run("blank key never matches", func(t *testing.T) {
		n, matched := Coverage("anything", []string{"", "   "})
		assert.Zero(t, n)
		assert.Empty(t, matched)
	})

	t.Run("blank answer matches nothing", func(t *testing.T) {
		n, _ := Coverage("   ", []string{"a"})
		assert.Zero(t, n)
	})

	t.Run("no key points", func(t *testing.T) {
		n, matched := Coverage("some answer", nil)
		assert.Zero(t, n)
		assert.NotNil(t, matched)
		assert.Equal(t, 0.0, CoverageRatio(n, 0))
	})
}

func TestCoverageRatioBounds(t *testing.T) {
	answers := []string{"", "abc", "alpha beta gamma", "물은 H2O이다"}
	keySets := [][]string{nil, {}, {"alpha"}, {"alpha", "beta", "delta"}, {"h2o", "h2o"}}
	for _, a := range answers {
		for _, keys := range keySets {
			n, _ := Coverage(a, keys)
			c := CoverageRatio(n, len(keys))
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
			if len(keys) == 0 {
				assert.Equal(t, 0.0, c)
			}
		}
	}
}

func TestScoreShortCircuit(t *testing.T) {
	for _, a := range []string{"", "   ", "abc", "  ab  ", "가나다", "\tx\n"} {
		t.Run(fmt.Sprintf("%q", a), func(t *testing.T) {
			res, err := Score(a, "abc is the answer", []string{"abc"})
			require.NoError(t, err)
			assert.Equal(t, model.ScoreResult{MatchedKeys: []string{}}, res)
		})
	}

	// Four runes is enough even when the bytes are multi-byte.
	res, err := Score("가나다라", "가나다라", []string{"가나"})
	require.NoError(t, err)
	assert.Positive(t, res.Total)
}

func TestScoreScenarioEmptyAnswer(t *testing.T) {
	res, err := Score("", "정답입니다", []string{"정답"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 0.0, res.Coverage)
	assert.Equal(t, 0.0, res.Similarity)
	assert.Equal(t, 0.0, res.LengthScore)
	assert.Empty(t, res.MatchedKeys)
}

func TestScoreScenarioKeyPointsMatched(t *testing.T) {
	res, err := Score("물은 H2O이다 정답", "물의 화학식은 H2O이다", []string{"H2O", "물"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Coverage)
	assert.Equal(t, []string{"H2O", "물"}, res.MatchedKeys)
	assert.Greater(t, res.Similarity, 0.0)
	assert.Equal(t, round3(3.0/60), res.LengthScore)
	// 10*(0.6 + 0.3*sim + 0.1*0.05) lies in [6.05, 9.05].
	assert.GreaterOrEqual(t, res.Total, 6)
	assert.LessOrEqual(t, res.Total, 9)
}

func TestScoreLengthSaturates(t *testing.T) {
	words := make([]string, 120)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	res, err := Score(strings.Join(words, " "), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.LengthScore)
	assert.Equal(t, 0.0, res.Coverage)
	assert.Equal(t, 0.0, res.Similarity)
	assert.Equal(t, 1, res.Total)
}

func TestScoreNoReference(t *testing.T) {
	res, err := Score("a reasonably long answer", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Similarity)
	assert.Equal(t, 0.0, res.Coverage)
	assert.Empty(t, res.MatchedKeys)
}

func TestScoreUsesAnswerAgainstModel(t *testing.T) {
	answer := "goroutines are lightweight threads"
	reference := "A goroutine is a lightweight thread managed by the Go runtime."
	res, err := Score(answer, reference, nil)
	require.NoError(t, err)
	assert.Equal(t, round3(Similarity(answer, reference)), res.Similarity)
}

func TestScoreTotalBounded(t *testing.T) {
	answers := []string{
		"abcd",
		"exactly the model answer",
		strings.Repeat("token ", 200),
		"물은 H2O이다 정답",
		"completely unrelated words here",
	}
	refs := []string{"", "exactly the model answer", "물의 화학식은 H2O이다"}
	keys := [][]string{nil, {"model"}, {"h2o", "물", "answer", "token"}}
	for _, a := range answers {
		for _, r := range refs {
			for _, k := range keys {
				res, err := Score(a, r, k)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, res.Total, 0)
				assert.LessOrEqual(t, res.Total, MaxTotal)
			}
		}
	}
}

func TestScoreWithWeightsClamps(t *testing.T) {
	heavy := Weights{Coverage: 2, Similarity: 2, Length: 2}
	res, err := ScoreWithWeights("exactly the model answer", "exactly the model answer", []string{"model"}, heavy)
	require.NoError(t, err)
	assert.Equal(t, MaxTotal, res.Total)

	negative := Weights{Coverage: -1, Similarity: -1, Length: -1}
	res, err = ScoreWithWeights("exactly the model answer", "exactly the model answer", []string{"model"}, negative)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}

func TestScorePerfectAnswer(t *testing.T) {
	ref := "Photosynthesis converts light energy into chemical energy stored in glucose"
	res, err := Score(ref, ref, []string{"light energy", "glucose"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Coverage)
	assert.Equal(t, 1.0, res.Similarity)
	// 10*(0.6 + 0.3 + 0.1*10/60) = 9.17
	assert.Equal(t, 9, res.Total)
}

func TestScoreInvalidArgument(t *testing.T) {
	bad := string([]byte{0xff, 0xfe, 0xfd, 0xfc})
	_, err := Score(bad, "ref", nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = Score("valid answer", bad, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Score("valid answer", "ref", []string{"ok", bad})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func page(name string, n int, text string) model.ContextPage {
	return model.ContextPage{SourceName: name, PageNumber: n, Text: text}
}

func TestBestSourceScenario(t *testing.T) {
	pages := []model.ContextPage{
		page("doc.pdf", 1, "물은 H2O이다"),
		page("doc.pdf", 2, "전혀 관련없는 내용"),
	}
	src, err := BestSource("물의 화학식은?", "H2O", pages)
	require.NoError(t, err)
	require.True(t, src.Found())
	assert.Equal(t, "doc.pdf", src.Name())
	assert.Equal(t, 1, src.Page())
	assert.Greater(t, src.MatchScore, 1.0, "raw score stays on the 0-100 scale")
}

func TestBestSourceFirstMaxWins(t *testing.T) {
	pages := []model.ContextPage{
		page("a.pdf", 3, "unrelated"),
		page("a.pdf", 4, "the mitochondria is the powerhouse of the cell"),
		page("b.pdf", 1, "the mitochondria is the powerhouse of the cell"),
	}
	src, err := BestSource("what is the powerhouse of the cell", "mitochondria", pages)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", src.Name())
	assert.Equal(t, 4, src.Page())
}

func TestBestSourceEmptyPool(t *testing.T) {
	src, err := BestSource("q", "a", nil)
	require.NoError(t, err)
	assert.Nil(t, src.SourceName)
	assert.Nil(t, src.PageNumber)
	assert.Equal(t, -1.0, src.MatchScore)
	assert.False(t, src.Found())
}

func TestBestSourceZeroScoreIsStillAnAttribution(t *testing.T) {
	src, err := BestSource("abc", "", []model.ContextPage{page("x.pdf", 1, "zzz")})
	require.NoError(t, err)
	assert.Equal(t, 0.0, src.MatchScore)
	assert.True(t, src.Found())
	assert.Equal(t, "x.pdf", src.Name())
}

func TestBestSourceInvalidPage(t *testing.T) {
	_, err := BestSource("q", "a", []model.ContextPage{page("x.pdf", 0, "text")})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBestSourceContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BestSourceContext(ctx, "q", "a", []model.ContextPage{page("x.pdf", 1, "q a")})
	assert.ErrorIs(t, err, context.Canceled)
}

func graded(name string, score float64) model.Question {
	q := model.Question{Score: &score}
	if name != "" {
		n, p := name, 1
		q.Meta.Source = &model.SourceAttribution{SourceName: &n, PageNumber: &p, MatchScore: 50}
	}
	return q
}

func TestPDFStats(t *testing.T) {
	qs := []model.Question{
		graded("b.pdf", 9),
		graded("a.pdf", 3),
		graded("b.pdf", 7),
		graded("", 10),
		graded("a.pdf", 8),
		{Meta: model.QuestionMetadata{Source: &model.SourceAttribution{MatchScore: -1}}},
	}
	stats := PDFStats(qs)
	require.Len(t, stats, 2)
	assert.Equal(t, model.PDFStat{Filename: "b.pdf", Correct: 2, Total: 2, Rate: 1, NeedsReview: false}, stats[0])
	assert.Equal(t, model.PDFStat{Filename: "a.pdf", Correct: 1, Total: 2, Rate: 0.5, NeedsReview: true}, stats[1])
}

func TestWeaknessByPDF(t *testing.T) {
	qs := []model.Question{
		graded("strong.pdf", 9),
		graded("weak.pdf", 2),
		graded("strong.pdf", 7),
		graded("weak.pdf", 4),
		{},
	}
	w := WeaknessByPDF(qs)
	require.Len(t, w, 2)
	assert.Equal(t, "weak.pdf", w[0].Filename)
	assert.Equal(t, 3.0, w[0].Average)
	assert.Equal(t, 2, w[0].Count)
	assert.Equal(t, "strong.pdf", w[1].Filename)
	assert.Equal(t, 8.0, w[1].Average)
}

func TestAverageScore(t *testing.T) {
	assert.Equal(t, 0.0, AverageScore(nil))
	assert.Equal(t, 5.0, AverageScore([]model.Question{graded("", 10), {}}))
}
