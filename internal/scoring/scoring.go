// Package scoring grades free-text answers against a model answer and
// attributes questions to the source page they most likely came from.
//
// Everything here is a pure function of its arguments and safe for
// concurrent use.
package scoring

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/fuzzy"
)

// ErrInvalidArgument is returned for inputs that cannot be graded at all,
// such as text that is not valid UTF-8 or a page number below 1.
var ErrInvalidArgument = errors.New("invalid argument")

// Normalize lowercases s and trims surrounding whitespace. Every comparison
// in this package goes through it.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Coverage reports which key points occur, after normalization, as
// substrings of the answer. Matched keys keep their original spelling and
// input order. Blank key points never match.
func Coverage(answer string, keyPoints []string) (int, []string) {
	text := Normalize(answer)
	matched := []string{}
	for _, k := range keyPoints {
		kk := Normalize(k)
		if kk != "" && strings.Contains(text, kk) {
			matched = append(matched, k)
		}
	}
	return len(matched), matched
}

// CoverageRatio is matched/total with the denominator floored at 1, so an
// empty key point set yields 0 rather than a division by zero.
func CoverageRatio(matched, total int) float64 {
	return float64(matched) / float64(max(1, total))
}

// Similarity returns the partial fuzzy-match ratio of candidate against
// reference, scaled to [0,1]. A short correct excerpt of a long reference
// scores as high as the full reference.
func Similarity(candidate, reference string) float64 {
	return fuzzy.PartialRatio(Normalize(candidate), Normalize(reference)) / 100
}

// CountTokens counts maximal runs of Unicode letters and digits.
func CountTokens(s string) int {
	n := 0
	inToken := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if !inToken {
				n++
			}
			inToken = true
			continue
		}
		inToken = false
	}
	return n
}

func clamp(x, lo, hi float64) float64 {
	return max(lo, min(hi, x))
}

func validText(field string, values ...string) error {
	for _, v := range values {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: %s is not valid UTF-8 text", ErrInvalidArgument, field)
		}
	}
	return nil
}
