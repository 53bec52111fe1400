package redact

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
)

// ValidateCandidates converts model extraction candidates into verified
// spans. Every candidate must be independently re-located in workingText
// with an exact, case-insensitive, word-boundary match; a candidate the
// search cannot find is a blocked hallucination and is counted, not
// surfaced. Candidates whose surface form is in the medical allow-list are
// rejected outright so diagnosis and medication terms are never
// misclassified as names.
//
// No entity is ever accepted purely on the model's assertion; this is the
// mechanism that turns unreliable generative output into a verified
// extraction.
func ValidateCandidates(candidates []Candidate, workingText string, lex *lexicon.Store) (accepted []Span, rejected int) {
	for _, c := range candidates {
		surface := strings.TrimSpace(c.Text)
		if surface == "" {
			continue
		}
		if lex.IsMedicalTerm(surface) {
			continue
		}
		start, end := findWordBoundary(workingText, surface)
		if start < 0 {
			rejected++
			continue
		}
		accepted = append(accepted, Span{
			Label: c.Label,
			Text:  workingText[start:end], // original casing from the text
			Start: start,
			End:   end,
			Layer: LayerModel,
		})
	}
	return accepted, rejected
}

// findWordBoundary returns the byte range of the first case-insensitive
// occurrence of needle in haystack that sits on word boundaries, or (-1, -1).
// Boundaries are non-letter, non-digit neighbours (or the text edges). The
// match is made rune by rune, so case pairs whose UTF-8 encodings differ in
// length (U+0130 and friends) still yield offsets into the original text.
func findWordBoundary(haystack, needle string) (start, end int) {
	if needle == "" {
		return -1, -1
	}
	for i := 0; i < len(haystack); {
		if n, ok := foldPrefix(haystack[i:], needle); ok &&
			boundaryBefore(haystack, i) && boundaryAfter(haystack, i+n) {
			return i, i + n
		}
		_, size := utf8.DecodeRuneInString(haystack[i:])
		i += size
	}
	return -1, -1
}

// foldPrefix reports whether s starts with a case-insensitive match of
// needle, returning the matched prefix length in bytes of s.
func foldPrefix(s, needle string) (int, bool) {
	var n int
	for _, nr := range needle {
		sr, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0, false
		}
		if unicode.ToLower(sr) != unicode.ToLower(nr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
