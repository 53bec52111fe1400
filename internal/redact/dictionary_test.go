package redact_test

import (
	"testing"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

func TestDictionary_DetectAndTag(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"Boston", "New York"})
	d := redact.NewDictionaryDetector(lex)

	out, spans := d.DetectAndTag("Transferred from Boston to New York last week.")
	if out != "Transferred from [LOCATION] to [LOCATION] last week." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
}

func TestDictionary_TwoWordFallsBackToFirstWord(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"Boston"})
	d := redact.NewDictionaryDetector(lex)

	spans := d.Detect("Boston Harbor is windy.")
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Text != "Boston" {
		t.Errorf("span text = %q, want first word only", spans[0].Text)
	}
}

func TestDictionary_TwoWordFallsBackToSecondWord(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"Boston"})
	d := redact.NewDictionaryDetector(lex)

	// A title-cased word before the place name pulls it into a two-word
	// candidate; the place must still be caught on its own.
	out, spans := d.DetectAndTag("Visited Boston for the consult.")
	if out != "Visited [LOCATION] for the consult." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 1 || spans[0].Text != "Boston" {
		t.Fatalf("spans = %+v, want one Boston span", spans)
	}

	out, spans = d.DetectAndTag("In Boston the patient lives alone.")
	if out != "In [LOCATION] the patient lives alone." {
		t.Errorf("sentence-initial output = %q", out)
	}
	if len(spans) != 1 || spans[0].Text != "Boston" {
		t.Fatalf("sentence-initial spans = %+v, want one Boston span", spans)
	}
}

func TestDictionary_AdjacentLocationsBothCaught(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"Boston", "Cambridge"})
	d := redact.NewDictionaryDetector(lex)

	// Two adjacent deny-listed names that are not a deny-listed pair.
	out, spans := d.DetectAndTag("Moved from Boston Cambridge way.")
	if out != "Moved from [LOCATION] [LOCATION] way." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(spans), spans)
	}
}

func TestDictionary_AllowListWins(t *testing.T) {
	t.Parallel()
	// A medical term that collides with a deny-listed town name must never
	// be redacted.
	lex := lexicon.New([]string{"Parkinson"}, []string{"Parkinson"})
	d := redact.NewDictionaryDetector(lex)

	out, spans := d.DetectAndTag("Early signs of Parkinson disease were noted.")
	if len(spans) != 0 {
		t.Fatalf("got %d spans, want 0: %+v", len(spans), spans)
	}
	if out != "Early signs of Parkinson disease were noted." {
		t.Errorf("text was modified: %q", out)
	}
}

func TestDictionary_LowercaseTokensIgnored(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"boston"})
	d := redact.NewDictionaryDetector(lex)

	// Only title-cased tokens are candidates.
	spans := d.Detect("the boston area")
	if len(spans) != 0 {
		t.Fatalf("got %d spans for lowercase token, want 0", len(spans))
	}
}
