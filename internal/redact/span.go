// Package redact implements the multi-pass PII/PHI redaction engine for
// clinical transcripts.
//
// Detection runs in three layers of descending trust:
//
//  1. Rule detector: deterministic regex patterns for structured PII
//     (emails, phones, SSNs, dates, addresses, ...).
//  2. Dictionary detector: title-cased place names from the location
//     deny-list, unless shadowed by the medical allow-list.
//  3. Model extraction: a language model proposes PERSON/ORG candidates,
//     every one of which must be independently re-located in the working
//     text before it is accepted (hallucinations are discarded and counted).
//
// The [Pipeline] orchestrates the layers in two output modes: tag mode
// replaces PII in place with [LABEL] markers (irreversible), reversible mode
// replaces PII with numbered {{LABEL_n}} placeholders and returns a mapping
// for later restoration.
package redact

import "context"

// Category classifies a detected entity. The set is closed: the extraction
// parser maps free-form model labels onto it and anything unclassifiable
// becomes CategoryRedacted.
type Category string

const (
	CategoryEmail     Category = "EMAIL"
	CategoryPhone     Category = "PHONE"
	CategoryDate      Category = "DATE"
	CategoryID        Category = "ID"
	CategoryZIP       Category = "ZIP"
	CategoryAddress   Category = "ADDRESS"
	CategoryInsurance Category = "INSURANCE"
	CategoryLocation  Category = "LOCATION"
	CategoryPerson    Category = "PERSON"
	CategoryOrg       Category = "ORG"

	// CategoryRedacted is the catch-all for model output that validated
	// against the text but carried an unrecognised label.
	CategoryRedacted Category = "REDACTED"
)

// Tag returns the human-readable tag-mode marker for the category, e.g.
// "[EMAIL]".
func (c Category) Tag() string { return "[" + string(c) + "]" }

// Layer identifies which detection pass produced a span. Lower layers are
// more trusted and win overlap resolution.
type Layer int

const (
	// LayerRules marks spans from the deterministic pattern pass.
	LayerRules Layer = 1

	// LayerDictionary marks spans from the deny-list lookup pass.
	LayerDictionary Layer = 2

	// LayerModel marks spans from validated model extraction.
	LayerModel Layer = 3
)

// Span is a labeled substring location. Offsets are half-open byte positions
// in a specific coordinate space: in reversible mode always the untouched
// original text; in tag mode the text as it stood at the start of the pass
// that found the span. Spans are immutable once created.
type Span struct {
	Label Category `json:"label"`
	Text  string   `json:"text"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Layer Layer    `json:"layer"`
}

// Overlaps reports whether the two spans intersect as half-open intervals.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Candidate is a single (surface text, category) pair proposed by the
// entity extraction model. Label is already normalised to the closed
// Category set by the extraction parser; the validator still has to locate
// Text in the working text before a Candidate becomes a Span.
type Candidate struct {
	Text  string
	Label Category
}

// Extractor is the narrow interface to the local entity extraction model.
// Implementations must treat model failures as recoverable: an unavailable
// or unparseable model yields an empty candidate slice and an error the
// pipeline logs and absorbs, never a panic.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}
