package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/halcyonhealth/phiredact/internal/extract"
	"github.com/halcyonhealth/phiredact/internal/redact"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm/mock"
)

func TestParseCandidates_WellFormedLines(t *testing.T) {
	t.Parallel()
	got := extract.ParseCandidates("John Smith | PERSON\nMercy General Hospital | ORG")

	want := []redact.Candidate{
		{Text: "John Smith", Label: redact.CategoryPerson},
		{Text: "Mercy General Hospital", Label: redact.CategoryOrg},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseCandidates_NothingSentinel(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"NOTHING", "nothing", "  NOTHING  ", ""} {
		if got := extract.ParseCandidates(raw); len(got) != 0 {
			t.Errorf("ParseCandidates(%q) = %+v, want none", raw, got)
		}
	}
}

func TestParseCandidates_MalformedLinesSkipped(t *testing.T) {
	t.Parallel()
	raw := "no separator here\n| PERSON\nJohn Smith |\nJohn Smith | PERSON"
	got := extract.ParseCandidates(raw)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(got), got)
	}
	if got[0].Text != "John Smith" {
		t.Errorf("candidate = %+v", got[0])
	}
}

func TestParseCandidates_SurfaceMayContainPipe(t *testing.T) {
	t.Parallel()
	// The split is on the last separator so pipes in the entity survive.
	got := extract.ParseCandidates("Smith | Jones Partners | ORG")
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(got), got)
	}
	if got[0].Text != "Smith | Jones Partners" || got[0].Label != redact.CategoryOrg {
		t.Errorf("candidate = %+v", got[0])
	}
}

func TestParseCandidates_LabelNormalization(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want redact.Category
	}{
		{"X | person", redact.CategoryPerson},
		{"X | PATIENT NAME", redact.CategoryPerson},
		{"X | organization", redact.CategoryOrg},
		{"X | FACILITY", redact.CategoryOrg},
		{"X | MYSTERY", redact.CategoryRedacted},
	}
	for _, tc := range cases {
		got := extract.ParseCandidates(tc.raw)
		if len(got) != 1 || got[0].Label != tc.want {
			t.Errorf("ParseCandidates(%q) = %+v, want label %s", tc.raw, got, tc.want)
		}
	}
}

func TestParseCandidates_StripsReasoningArtifacts(t *testing.T) {
	t.Parallel()
	raw := "<think>the user mentions John, likely a PERSON</think>\nJohn Smith | PERSON\n<|im_end|>"
	got := extract.ParseCandidates(raw)
	if len(got) != 1 || got[0].Text != "John Smith" {
		t.Fatalf("got %+v, want the single candidate", got)
	}
}

func TestParseCandidates_UnclosedThinkBlockTruncates(t *testing.T) {
	t.Parallel()
	raw := "John Smith | PERSON\n<think>and maybe also Mercy General | ORG"
	got := extract.ParseCandidates(raw)
	if len(got) != 1 || got[0].Text != "John Smith" {
		t.Fatalf("got %+v, want only the candidate before the think block", got)
	}
}

func TestExtract_SendsDeterministicRequest(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "John Smith | PERSON"},
	}
	c := extract.New(p)

	got, err := c.Extract(context.Background(), "Patient John Smith arrived.")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(got) != 1 || got[0].Text != "John Smith" {
		t.Fatalf("candidates = %+v", got)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", req.Temperature)
	}
	if req.MaxTokens == 0 {
		t.Error("MaxTokens not set")
	}
	if len(req.StopSequences) == 0 {
		t.Error("StopSequences not set")
	}
	if !strings.Contains(req.Messages[0].Content, "Patient John Smith arrived.") {
		t.Errorf("user message does not carry the text: %q", req.Messages[0].Content)
	}
}

func TestExtract_TransportErrorPropagates(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteErr: errors.New("connection refused")}
	c := extract.New(p)

	_, err := c.Extract(context.Background(), "some text")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestExtract_NilResponseYieldsNoCandidates(t *testing.T) {
	t.Parallel()
	c := extract.New(&mock.Provider{})

	got, err := c.Extract(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("candidates = %+v, want none", got)
	}
}
