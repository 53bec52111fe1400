package redact_test

import (
	"strings"
	"testing"

	"github.com/halcyonhealth/phiredact/internal/redact"
)

func newRules(t *testing.T) *redact.RuleDetector {
	t.Helper()
	d, err := redact.NewRuleDetector()
	if err != nil {
		t.Fatalf("NewRuleDetector() error: %v", err)
	}
	return d
}

func TestDetectAndTag_Email(t *testing.T) {
	t.Parallel()
	out, spans := newRules(t).DetectAndTag("Contact john.doe@example.com for results.")
	if out != "Contact [EMAIL] for results." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 1 || spans[0].Label != redact.CategoryEmail {
		t.Fatalf("spans = %+v, want one EMAIL span", spans)
	}
	if spans[0].Text != "john.doe@example.com" {
		t.Errorf("span text = %q", spans[0].Text)
	}
}

func TestDetectAndTag_PhoneFormats(t *testing.T) {
	t.Parallel()
	d := newRules(t)
	cases := []struct {
		in   string
		want string
	}{
		{"Call 555-123-4567 today.", "Call [PHONE] today."},
		{"Call (555) 123-4567 today.", "Call [PHONE] today."},
		{"Call +1 555.123.4567 today.", "Call [PHONE] today."},
	}
	for _, tc := range cases {
		out, _ := d.DetectAndTag(tc.in)
		if out != tc.want {
			t.Errorf("DetectAndTag(%q) = %q, want %q", tc.in, out, tc.want)
		}
	}
}

func TestDetectAndTag_SSNIsNotPhone(t *testing.T) {
	t.Parallel()
	out, spans := newRules(t).DetectAndTag("SSN 123-45-6789 on file.")
	if out != "SSN [ID] on file." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 1 || spans[0].Label != redact.CategoryID {
		t.Fatalf("spans = %+v, want one ID span", spans)
	}
}

func TestDetectAndTag_MRN(t *testing.T) {
	t.Parallel()
	d := newRules(t)
	for _, in := range []string{
		"MRN: 12345678 confirmed.",
		"medical record number 987654 confirmed.",
	} {
		out, _ := d.DetectAndTag(in)
		if !strings.Contains(out, "[ID]") {
			t.Errorf("DetectAndTag(%q) = %q, want [ID] tag", in, out)
		}
	}
}

func TestDetectAndTag_Dates(t *testing.T) {
	t.Parallel()
	d := newRules(t)
	cases := []struct {
		in   string
		want string
	}{
		{"Seen on 01/15/2024 at clinic.", "Seen on [DATE] at clinic."},
		{"Seen on 1-5-24 at clinic.", "Seen on [DATE] at clinic."},
		{"Seen on January 15, 2024 at clinic.", "Seen on [DATE] at clinic."},
		{"Seen on March 3rd 2022 at clinic.", "Seen on [DATE] at clinic."},
	}
	for _, tc := range cases {
		out, _ := d.DetectAndTag(tc.in)
		if out != tc.want {
			t.Errorf("DetectAndTag(%q) = %q, want %q", tc.in, out, tc.want)
		}
	}
}

func TestDetectAndTag_AddressAbsorbsZIP(t *testing.T) {
	t.Parallel()
	out, spans := newRules(t).DetectAndTag("Lives at 12 Oak Street, Boston, MA 02118.")
	if out != "Lives at [ADDRESS]." {
		t.Errorf("output = %q", out)
	}
	for _, s := range spans {
		if s.Label == redact.CategoryZIP {
			t.Errorf("ZIP span leaked out of address: %+v", s)
		}
	}
}

func TestDetectAndTag_ZIPContext(t *testing.T) {
	t.Parallel()
	d := newRules(t)

	out, _ := d.DetectAndTag("Shipped to Boston, 02118 yesterday.")
	if !strings.Contains(out, "[ZIP]") {
		t.Errorf("comma-context ZIP not tagged: %q", out)
	}

	// A bare number at the start of the text has no ZIP context.
	out, _ = d.DetectAndTag("02118 readings were recorded.")
	if strings.Contains(out, "[ZIP]") {
		t.Errorf("text-initial number tagged as ZIP: %q", out)
	}
}

func TestDetectAndTag_Insurance(t *testing.T) {
	t.Parallel()
	d := newRules(t)
	for _, in := range []string{
		"Covered by Blue Cross Blue Shield since 2019.",
		"Covered by aetna since 2019.",
		"Covered by Kaiser Permanente since 2019.",
	} {
		out, _ := d.DetectAndTag(in)
		if !strings.Contains(out, "[INSURANCE]") {
			t.Errorf("DetectAndTag(%q) = %q, want [INSURANCE] tag", in, out)
		}
	}
}

func TestDetectAndTag_HonorificKeepsTitle(t *testing.T) {
	t.Parallel()
	out, spans := newRules(t).DetectAndTag("Dr. Sarah Chen reviewed the labs.")
	if out != "Dr. [PERSON] reviewed the labs." {
		t.Errorf("output = %q", out)
	}
	if len(spans) != 1 {
		t.Fatalf("spans = %+v, want exactly one", spans)
	}
	if spans[0].Text != "Sarah Chen" {
		t.Errorf("span text = %q, want the name only", spans[0].Text)
	}
}

func TestDetect_SharedCoordinates(t *testing.T) {
	t.Parallel()
	text := "Email a@b.org or call 555-123-4567."
	spans := newRules(t).Detect(text)
	if len(spans) != 2 {
		t.Fatalf("Detect() returned %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if got := text[s.Start:s.End]; got != s.Text {
			t.Errorf("span %s offsets [%d,%d) select %q, want %q", s.Label, s.Start, s.End, got, s.Text)
		}
	}
}
