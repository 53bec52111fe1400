package redact

import (
	"fmt"
	"sort"
	"strings"
)

// Mapping is the reversible-mode restoration table: placeholder token →
// original surface text. It is built once per invocation and must never
// leave the device; only the placeholder text crosses the cloud boundary.
type Mapping map[string]string

// Placeholders substitutes every accepted span in original with a unique,
// category-scoped {{LABEL_n}} token and returns the rewritten text plus the
// restoration table.
//
// Counters are zero-based per label and assigned in ascending original
// offset so numbering reads naturally, even though substitution itself is
// resolved right-to-left to keep untouched offsets valid. All span offsets
// must reference the untouched original text.
func Placeholders(spans []Span, original string) (string, Mapping) {
	if len(spans) == 0 {
		return original, Mapping{}
	}

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	mapping := make(Mapping, len(ordered))
	counters := make(map[Category]int, len(ordered))

	var script editScript
	for _, s := range ordered {
		token := fmt.Sprintf("{{%s_%d}}", s.Label, counters[s.Label])
		counters[s.Label]++
		mapping[token] = original[s.Start:s.End]
		script.add(s.Start, s.End, token)
	}

	return script.apply(original), mapping
}

// Restore performs literal, non-regex replacement of every placeholder token
// in text with its mapped original value. Tokens absent from text are
// no-ops, which makes Restore idempotent against a stale mapping. It must
// run before any further mutation of the text: placeholder tokens are plain
// text and a careless intermediate transform could alter them.
func Restore(text string, mapping Mapping) string {
	if len(mapping) == 0 {
		return text
	}
	// Deterministic order; replacement values never contain placeholder
	// tokens, so order does not affect the result.
	tokens := make([]string, 0, len(mapping))
	for tok := range mapping {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	for _, tok := range tokens {
		text = strings.ReplaceAll(text, tok, mapping[tok])
	}
	return text
}
