package redact

import "sort"

// edit is a single planned replacement of text[start:end] with replacement.
type edit struct {
	start       int
	end         int
	replacement string
}

// editScript collects non-overlapping edits against one fixed coordinate
// space and applies them in a single right-to-left pass. Applying from the
// highest offset down keeps every pending edit's offsets valid, which
// replaces the error-prone running length-delta bookkeeping a naive
// replace-as-you-go approach needs.
type editScript struct {
	edits []edit
}

// add appends a planned replacement. Offsets must reference the text the
// script will be applied to; overlapping edits are the caller's bug.
func (es *editScript) add(start, end int, replacement string) {
	es.edits = append(es.edits, edit{start: start, end: end, replacement: replacement})
}

// apply resolves all edits against text and returns the rewritten string.
// The script is sorted by descending start offset before application, so
// callers may add edits in any order.
func (es *editScript) apply(text string) string {
	if len(es.edits) == 0 {
		return text
	}
	sort.Slice(es.edits, func(i, j int) bool {
		return es.edits[i].start > es.edits[j].start
	})
	out := text
	for _, e := range es.edits {
		out = out[:e.start] + e.replacement + out[e.end:]
	}
	return out
}
