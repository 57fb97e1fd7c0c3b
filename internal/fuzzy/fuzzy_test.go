package fuzzy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveLCS is the textbook dynamic program, used to cross-check the bit-parallel one.
func naiveLCS(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func TestLCSMatchesNaive(t *testing.T) {
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 4)
	tests := []struct {
		name string
		a, b string
	}{
		{"identical", "abcdef", "abcdef"},
		{"disjoint", "abc", "xyz"},
		{"interleaved", "axbycz", "abc"},
		{"hangul", "물의 화학식은 h2o이다", "물은 h2o이다 정답"},
		{"crosses word boundary", long, "quick fox lazy dog over brown the"},
		{"both long", long, strings.ReplaceAll(long, "o", "0")},
		{"exactly 64", strings.Repeat("ab", 32), strings.Repeat("ba", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := []rune(tt.a), []rune(tt.b)
			want := naiveLCS(a, b)
			assert.Equal(t, want, newPattern(a).lcs(b))
			assert.Equal(t, want, newPattern(b).lcs(a))
		})
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("", "abc"))
	assert.Equal(t, 100.0, Ratio("abc", "abc"))
	assert.Equal(t, 75.0, Ratio("abcd", "abce"))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 100},
		{"one empty", "", "abc", 0},
		{"other empty", "abc", "", 0},
		{"excerpt in the middle", "abc", "xxabcxx", 100},
		{"excerpt at start", "fuzzy", "fuzzy wuzzy was a bear", 100},
		{"excerpt at end", "bear", "fuzzy wuzzy was a bear", 100},
		{"equal length prefix window", "abcd", "abce", 200.0 * 3 / 7},
		{"equal length rotated", "abcd", "bcda", 200.0 * 3 / 7},
		{"equal length identical", "abcd", "abcd", 100},
		{"equal length disjoint", "abcd", "wxyz", 0},
		{"nothing shared", "abc", "xyzxyz", 0},
		{"hangul excerpt", "h2o이다", "물의 화학식은 h2o이다", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PartialRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestPartialRatioBoundaryWindow(t *testing.T) {
	// "xyab" only overlaps "abzzzzzz" at its start: the best window is the
	// two-rune prefix "ab", giving 2*2/(4+2).
	got := PartialRatio("xyab", "abzzzzzz")
	require.InDelta(t, 200.0*2/6, got, 1e-9)
}

func TestPartialRatioEqualLengthIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"abcd", "bcda"},
		{"2은abbcOHHOc", "aab2OacHO물b"},
		{"광합성은빛", "빛으로광합"},
	}
	for _, p := range pairs {
		ab, ba := PartialRatio(p[0], p[1]), PartialRatio(p[1], p[0])
		assert.InDelta(t, ab, ba, 1e-9, "%q vs %q", p[0], p[1])
		assert.GreaterOrEqual(t, ab, Ratio(p[0], p[1]), "%q vs %q", p[0], p[1])
	}
	assert.InDelta(t, 200.0*5/19, PartialRatio("2은abbcOHHOc", "aab2OacHO물b"), 1e-9)
}

func TestPartialRatioRewardsShortExcerpt(t *testing.T) {
	reference := "a goroutine is a lightweight thread managed by the go runtime"
	short := PartialRatio("lightweight thread", reference)
	unrelated := PartialRatio("database index", reference)
	assert.Greater(t, short, unrelated)
	assert.Equal(t, 100.0, short)
}

func TestPartialRatioDeterministic(t *testing.T) {
	a, b := "물은 h2o이다 정답", "물의 화학식은 h2o이다"
	first := PartialRatio(a, b)
	for range 5 {
		assert.Equal(t, first, PartialRatio(a, b))
	}
	assert.Greater(t, first, 0.0)
	assert.LessOrEqual(t, first, 100.0)
}
