package redact

import (
	"regexp"
	"strings"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
)

// candidateRe matches one or two adjacent title-cased words. Two-word
// windows are preferred by the regex's greediness so that "San Diego" is
// tested before "San".
var candidateRe = regexp.MustCompile(`\b([A-Z][a-z]+)((?:\s+)([A-Z][a-z]+))?\b`)

// DictionaryDetector tags title-cased tokens that appear in the location
// deny-list. The medical allow-list wins ties: a drug name that coincides
// with a town name is never redacted. Lookups are hash-set membership tests,
// so a full transcript pass is linear in its token count.
type DictionaryDetector struct {
	lex *lexicon.Store
}

// NewDictionaryDetector returns a detector backed by the shared read-only
// lexicon store.
func NewDictionaryDetector(lex *lexicon.Store) *DictionaryDetector {
	return &DictionaryDetector{lex: lex}
}

// DetectAndTag runs the tag-mode dictionary pass: every deny-listed match is
// replaced with the [LOCATION] marker. Replacements are resolved
// right-to-left so earlier matches never invalidate later offsets. Returned
// span offsets reference the input text.
func (d *DictionaryDetector) DetectAndTag(text string) (string, []Span) {
	spans := d.Detect(text)
	if len(spans) == 0 {
		return text, nil
	}
	var script editScript
	for _, s := range spans {
		script.add(s.Start, s.End, CategoryLocation.Tag())
	}
	return script.apply(text), spans
}

// Detect collects LOCATION spans without mutating the text. A candidate is
// accepted iff its surface form is title-cased, present in the deny-list,
// and absent from the allow-list. When a two-word candidate misses, each
// word is retried alone: "Visited Boston" is not a place, "Boston" is.
func (d *DictionaryDetector) Detect(text string) []Span {
	locs := candidateRe.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return nil
	}

	var spans []Span
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		surface := text[start:end]
		if d.isLocation(surface) {
			spans = append(spans, Span{
				Label: CategoryLocation,
				Text:  surface,
				Start: start,
				End:   end,
				Layer: LayerDictionary,
			})
			continue
		}
		if loc[4] < 0 { // single-word candidate, already tested
			continue
		}
		for _, w := range [][2]int{{loc[2], loc[3]}, {loc[6], loc[7]}} {
			word := text[w[0]:w[1]]
			if d.isLocation(word) {
				spans = append(spans, Span{
					Label: CategoryLocation,
					Text:  word,
					Start: w[0],
					End:   w[1],
					Layer: LayerDictionary,
				})
			}
		}
	}
	return spans
}

// isLocation applies the deny-list/allow-list precedence rule. The surface
// is normalised to single spaces so "San  Diego" still hits "san diego".
func (d *DictionaryDetector) isLocation(surface string) bool {
	norm := strings.Join(strings.Fields(surface), " ")
	if !d.lex.IsLocation(norm) {
		return false
	}
	return !d.lex.IsMedicalTerm(norm)
}
