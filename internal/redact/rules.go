package redact

import (
	"fmt"
	"regexp"
)

// rulePattern is one deterministic matcher in the rule detector's fixed
// priority order.
type rulePattern struct {
	label Category

	re *regexp.Regexp

	// group selects the submatch to redact; 0 redacts the whole match. The
	// honorific pattern keeps the honorific verbatim and redacts only the
	// captured name, so its span is derived from the capture group's actual
	// index rather than back-computed from the match end.
	group int

	// accept, when non-nil, filters matches that satisfy the regex but are
	// contextually implausible (e.g. a bare 5-digit number that is a dosage,
	// not a ZIP code). loc is the submatch index slice for the match.
	accept func(text string, loc []int) bool
}

// rulePriority defines the fixed pattern order. Earlier patterns consume
// their matches before later ones run, so a ZIP inside a street address is
// absorbed by the address pattern and a phone number is never re-matched as
// an ID fragment.
var rulePriority = []struct {
	label  Category
	expr   string
	group  int
	accept func(text string, loc []int) bool
}{
	{label: CategoryEmail, expr: `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`},
	{label: CategoryPhone, expr: `(?:\+?1[\s.\-])?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`},
	// Full street address with optional city/state/ZIP tail.
	{label: CategoryAddress, expr: `\b\d+\s+[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way)\b\.?(?:,\s*[A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)*,\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?)?`},
	{label: CategoryAddress, expr: `\b[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`},
	{label: CategoryZIP, expr: `\b\d{5}(?:-\d{4})?\b`, accept: zipContext},
	{label: CategoryDate, expr: `\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`},
	{label: CategoryDate, expr: `\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`},
	{label: CategoryID, expr: `\b\d{3}-\d{2}-\d{4}\b`},
	{label: CategoryID, expr: `(?i)\b(?:MRN|medical record number)[:#\s]+\d{4,12}\b`},
	{label: CategoryInsurance, expr: `(?i)\b(?:aetna|cigna|humana|united\s?healthcare|unitedhealth|blue\s?cross(?:\s?blue\s?shield)?|anthem|kaiser(?:\s?permanente)?|medicare|medicaid|tricare)\b`},
	{label: CategoryPerson, expr: `\b(Dr|Mr|Mrs|Ms|Prof)\.?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`, group: 2},
}

// zipContext keeps a standalone 5-digit match only when the preceding
// character is a comma, space, or newline. Bare numbers mid-token or at the
// start of the text (dosages, device readings) are skipped.
func zipContext(text string, loc []int) bool {
	start := loc[0]
	if start == 0 {
		return false
	}
	switch text[start-1] {
	case ',', ' ', '\n':
		return true
	}
	return false
}

// RuleDetector applies the fixed-priority pattern list. It is stateless
// after construction and safe for concurrent use.
type RuleDetector struct {
	patterns []rulePattern
}

// NewRuleDetector compiles the pattern table. A pattern that fails to
// compile is a programming error and aborts initialization.
func NewRuleDetector() (*RuleDetector, error) {
	d := &RuleDetector{patterns: make([]rulePattern, 0, len(rulePriority))}
	for _, p := range rulePriority {
		re, err := regexp.Compile(p.expr)
		if err != nil {
			return nil, fmt.Errorf("redact: compile %s pattern: %w", p.label, err)
		}
		d.patterns = append(d.patterns, rulePattern{
			label:  p.label,
			re:     re,
			group:  p.group,
			accept: p.accept,
		})
	}
	return d, nil
}

// DetectAndTag runs the tag-mode rule pass: each pattern scans the output of
// the previous pattern and replaces its matches with [LABEL] markers.
// Returned span offsets reference the text as it stood at the start of the
// pattern's own pass.
//
// Patterns never fail; a non-match simply contributes zero spans.
func (d *RuleDetector) DetectAndTag(text string) (string, []Span) {
	var spans []Span
	working := text

	for _, p := range d.patterns {
		matches := d.matchPattern(p, working)
		if len(matches) == 0 {
			continue
		}
		var script editScript
		for _, s := range matches {
			script.add(s.Start, s.End, s.Label.Tag())
		}
		spans = append(spans, matches...)
		working = script.apply(working)
	}

	return working, spans
}

// Detect runs the collect-only rule pass for reversible mode: every pattern
// scans the same untouched text and all span offsets share the original
// coordinate space. Overlap between patterns (a ZIP inside an address) is
// resolved later by the pipeline's merge step.
func (d *RuleDetector) Detect(text string) []Span {
	var spans []Span
	for _, p := range d.patterns {
		spans = append(spans, d.matchPattern(p, text)...)
	}
	return spans
}

// matchPattern finds all accepted matches of p in text as spans.
func (d *RuleDetector) matchPattern(p rulePattern, text string) []Span {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		if p.accept != nil && !p.accept(text, loc) {
			continue
		}
		start, end := loc[2*p.group], loc[2*p.group+1]
		if start < 0 || end <= start {
			continue
		}
		spans = append(spans, Span{
			Label: p.label,
			Text:  text[start:end],
			Start: start,
			End:   end,
			Layer: LayerRules,
		})
	}
	return spans
}
