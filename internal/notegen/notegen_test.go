package notegen_test

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyonhealth/phiredact/internal/notegen"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

// stubDrafter returns a fixed note or error.
type stubDrafter struct {
	note string
	err  error

	gotText string
}

func (s *stubDrafter) Draft(_ context.Context, placeholderText string) (string, error) {
	s.gotText = placeholderText
	return s.note, s.err
}

func TestMissingTokens(t *testing.T) {
	t.Parallel()
	mapping := redact.Mapping{
		"{{PERSON_0}}": "John Smith",
		"{{DATE_0}}":   "01/15/2024",
		"{{DATE_1}}":   "02/20/2024",
	}
	note := "Patient {{PERSON_0}} seen on {{DATE_0}}."

	missing := notegen.MissingTokens(note, mapping)
	if len(missing) != 1 || missing[0] != "{{DATE_1}}" {
		t.Errorf("MissingTokens() = %v, want [{{DATE_1}}]", missing)
	}
}

func TestGenerateNote_RestoresLocally(t *testing.T) {
	t.Parallel()
	res := &redact.Result{
		Output:  "Patient {{PERSON_0}} seen on {{DATE_0}}.",
		Mapping: redact.Mapping{"{{PERSON_0}}": "John Smith", "{{DATE_0}}": "01/15/2024"},
	}
	d := &stubDrafter{note: "S: {{PERSON_0}} presented on {{DATE_0}} with mild headache."}

	note, err := notegen.GenerateNote(context.Background(), d, res)
	if err != nil {
		t.Fatalf("GenerateNote() error: %v", err)
	}
	if note != "S: John Smith presented on 01/15/2024 with mild headache." {
		t.Errorf("note = %q", note)
	}
	if d.gotText != res.Output {
		t.Errorf("drafter received %q, want only the placeholder text", d.gotText)
	}
}

func TestGenerateNote_RequiresReversibleResult(t *testing.T) {
	t.Parallel()
	res := &redact.Result{Output: "Patient [PERSON] seen."}

	_, err := notegen.GenerateNote(context.Background(), &stubDrafter{}, res)
	if err == nil {
		t.Fatal("expected error for tag-mode result, got nil")
	}
}

func TestGenerateNote_DraftErrorPropagates(t *testing.T) {
	t.Parallel()
	res := &redact.Result{
		Output:  "{{PERSON_0}}",
		Mapping: redact.Mapping{"{{PERSON_0}}": "John"},
	}
	d := &stubDrafter{err: errors.New("rate limited")}

	_, err := notegen.GenerateNote(context.Background(), d, res)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestGenerateNote_DroppedTokensStayDropped(t *testing.T) {
	t.Parallel()
	res := &redact.Result{
		Output:  "{{PERSON_0}} and {{PERSON_1}}",
		Mapping: redact.Mapping{"{{PERSON_0}}": "John", "{{PERSON_1}}": "Jane"},
	}
	// The model dropped the second token; restoration must not guess.
	d := &stubDrafter{note: "Note about {{PERSON_0}} only."}

	note, err := notegen.GenerateNote(context.Background(), d, res)
	if err != nil {
		t.Fatalf("GenerateNote() error: %v", err)
	}
	if note != "Note about John only." {
		t.Errorf("note = %q", note)
	}
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()
	if _, err := notegen.New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := notegen.New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}
