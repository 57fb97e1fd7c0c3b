package scoring

import (
	"sort"

	"github.com/pavelanni/examgen/internal/model"
)

const (
	// CorrectThreshold is the lowest total counted as a correct answer.
	CorrectThreshold = 7
	// ReviewRate is the per-file correct rate below which review is suggested.
	ReviewRate = 0.6
)

// PDFStats counts correct answers per attributed source file, in order of
// first appearance. Questions without an attribution are skipped.
func PDFStats(questions []model.Question) []model.PDFStat {
	var stats []model.PDFStat
	index := make(map[string]int)
	for _, q := range questions {
		src := q.Meta.Source
		if src == nil || !src.Found() {
			continue
		}
		name := src.Name()
		i, ok := index[name]
		if !ok {
			i = len(stats)
			index[name] = i
			stats = append(stats, model.PDFStat{Filename: name})
		}
		stats[i].Total++
		if q.ScoreOrZero() >= CorrectThreshold {
			stats[i].Correct++
		}
	}
	for i := range stats {
		stats[i].Rate = float64(stats[i].Correct) / float64(stats[i].Total)
		stats[i].NeedsReview = stats[i].Rate < ReviewRate
	}
	return stats
}

// WeaknessByPDF averages scores per attributed source file, weakest first.
// Files with equal averages keep first-appearance order.
func WeaknessByPDF(questions []model.Question) []model.PDFWeakness {
	var out []model.PDFWeakness
	index := make(map[string]int)
	sums := make(map[string]float64)
	for _, q := range questions {
		if q.Meta.Source == nil || q.Meta.Source.Name() == "" {
			continue
		}
		name := q.Meta.Source.Name()
		if _, ok := index[name]; !ok {
			index[name] = len(out)
			out = append(out, model.PDFWeakness{Filename: name})
		}
		out[index[name]].Count++
		sums[name] += q.ScoreOrZero()
	}
	for i := range out {
		out[i].Average = sums[out[i].Filename] / float64(out[i].Count)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average < out[j].Average })
	return out
}

// AverageScore is the mean stored score, treating ungraded questions as 0.
func AverageScore(questions []model.Question) float64 {
	if len(questions) == 0 {
		return 0
	}
	var sum float64
	for _, q := range questions {
		sum += q.ScoreOrZero()
	}
	return sum / float64(len(questions))
}
