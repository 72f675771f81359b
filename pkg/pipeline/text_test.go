package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  hello  world ", "hello world"},
		{"line\none\n\nline two", "line one line two"},
		{"tabs\tand\t spaces", "tabs and spaces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeText(tt.in))
	}
}

func TestFirstSentences(t *testing.T) {
	text := "First point. Second point! Third point? Fourth point."

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"one sentence", 1, "First point."},
		{"two sentences", 2, "First point. Second point!"},
		{"more than available", 10, text},
		{"zero returns everything", 0, text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstSentences(text, tt.n))
		})
	}

	assert.Equal(t, "no terminal punctuation here",
		firstSentences("no terminal punctuation here", 2),
		"text without boundaries is returned whole")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Quantum Computing", "quantum-computing"},
		{"  spaced  out  ", "spaced-out"},
		{"C++ & Go!", "c-go"},
		{"already-sluggy", "already-sluggy"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in))
	}
}

func TestTruncateAtRune(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short input untouched", "hello", 10, "hello"},
		{"exact length untouched", "hello", 5, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"cut lands mid-rune", "héllo", 2, "h"},
		{"cut lands on rune start", "héllo", 3, "hé"},
		{"zero max", "hello", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateAtRune(tt.in, tt.max))
		})
	}

	// A multi-byte rune straddling the limit must never be split.
	long := strings.Repeat("知識グラフ", 400)
	for max := 1; max < 16; max++ {
		out := truncateAtRune(long, max)
		assert.True(t, utf8.ValidString(out), "max=%d produced invalid UTF-8", max)
		assert.LessOrEqual(t, len(out), max)
	}
}

func TestParseCandidates(t *testing.T) {
	candidates, err := parseCandidates(`[{"name":"quantum","score":0.9},{"name":"qubits","score":0.5}]`)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, Candidate{Name: "quantum", Score: 0.9}, candidates[0])
}

func TestParseCandidatesStripsFences(t *testing.T) {
	raw := "```json\n[{\"name\":\"quantum\",\"score\":0.9}]\n```"
	candidates, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestParseCandidatesClampsAndFilters(t *testing.T) {
	candidates, err := parseCandidates(`[
		{"name":"over","score":3},
		{"name":"under","score":-1},
		{"name":"  ","score":0.5}
	]`)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "blank names are dropped")
	assert.Equal(t, 1.0, candidates[0].Score)
	assert.Equal(t, 0.0, candidates[1].Score)
}

func TestParseCandidatesRejectsProse(t *testing.T) {
	_, err := parseCandidates("Sure! Here are the concepts:")
	require.Error(t, err)
}
