package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalizeText collapses all runs of whitespace to single spaces and
// trims the ends, so content checksums and summaries are stable across
// formatting differences in the raw input.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstSentences returns the first n sentences of the text, splitting on
// terminal punctuation. Text with no sentence boundaries is returned
// whole.
func firstSentences(text string, n int) string {
	if n <= 0 {
		return text
	}

	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
		if len(sentences) == n {
			return strings.Join(sentences, " ")
		}
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return strings.Join(sentences, " ")
}

// truncateAtRune shortens s to at most max bytes without splitting a
// multi-byte rune, so the result is always valid UTF-8.
func truncateAtRune(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// slugify lowercases a name and maps every non-alphanumeric run to a
// single hyphen, producing stable ids like "concept:quantum-computing".
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
