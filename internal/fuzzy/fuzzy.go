// Package fuzzy implements the string similarity ratios used for grading
// and source attribution. Scores are on a 0-100 scale and operate on runes,
// so Hangul and other multi-byte text compares per character.
package fuzzy

import "math/bits"

// Ratio returns the normalized indel similarity of a and b:
// 2*LCS(a, b) / (len(a)+len(b)) * 100. Two empty strings are identical.
func Ratio(a, b string) float64 {
	return ratio([]rune(a), []rune(b))
}

// PartialRatio aligns the shorter string against every window of the longer
// one and returns the best Ratio found. Windows that run off either end of
// the longer string are considered too, so a match at the boundary scores
// as well as one in the middle. Strings of equal length are aligned both
// ways round.
//
// If both strings are empty the result is 100; if only one is, 0.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	best := partialScan(short, long)
	if best < 100 && len(short) == len(long) {
		best = max(best, partialScan(long, short))
	}
	return best
}

// partialScan slides short over long as the LCS pattern.
func partialScan(short, long []rune) float64 {
	p := newPattern(short)
	n, m := len(short), len(long)
	best := 0.0
	consider := func(window []rune) bool {
		r := p.ratio(window)
		if r > best {
			best = r
		}
		return best == 100
	}

	// Prefix windows shorter than the pattern.
	for i := 1; i < n; i++ {
		if !p.has(long[i-1]) {
			continue
		}
		if consider(long[:i]) {
			return best
		}
	}
	// Full-width windows.
	for i := 0; i+n <= m; i++ {
		if !p.has(long[i]) && !p.has(long[i+n-1]) {
			continue
		}
		if consider(long[i : i+n]) {
			return best
		}
	}
	// Suffix windows shorter than the pattern.
	for i := m - n + 1; i < m; i++ {
		if !p.has(long[i]) {
			continue
		}
		if consider(long[i:]) {
			return best
		}
	}
	return best
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return newPattern(a).ratio(b)
}

// pattern holds the match bit vectors of one string for the bit-parallel
// LCS algorithm (Hyyrö). Bit i of masks[r] is set when pattern[i] == r.
type pattern struct {
	n     int
	words int
	masks map[rune][]uint64
}

func newPattern(s []rune) *pattern {
	words := (len(s) + 63) / 64
	p := &pattern{n: len(s), words: words, masks: make(map[rune][]uint64)}
	for i, r := range s {
		m, ok := p.masks[r]
		if !ok {
			m = make([]uint64, words)
			p.masks[r] = m
		}
		m[i/64] |= 1 << (uint(i) % 64)
	}
	return p
}

func (p *pattern) has(r rune) bool {
	_, ok := p.masks[r]
	return ok
}

// lcs returns the length of the longest common subsequence of the pattern and t.
func (p *pattern) lcs(t []rune) int {
	v := make([]uint64, p.words)
	for i := range v {
		v[i] = ^uint64(0)
	}
	for _, r := range t {
		m, ok := p.masks[r]
		if !ok {
			continue
		}
		var carry uint64
		for w := range v {
			u := v[w] & m[w]
			sum, c := bits.Add64(v[w], u, carry)
			carry = c
			v[w] = sum | (v[w] - u)
		}
	}
	matched := 0
	for w, x := range v {
		zeros := ^x
		if w == p.words-1 && p.n%64 != 0 {
			zeros &= (uint64(1) << (uint(p.n) % 64)) - 1
		}
		matched += bits.OnesCount64(zeros)
	}
	return matched
}

func (p *pattern) ratio(t []rune) float64 {
	total := p.n + len(t)
	if total == 0 {
		return 100
	}
	return 200 * float64(p.lcs(t)) / float64(total)
}
