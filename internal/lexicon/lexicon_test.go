package lexicon_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
)

func writeLexiconFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_ParsesBothFiles(t *testing.T) {
	t.Parallel()
	medical := writeLexiconFile(t, "medical.txt", "Lisinopril\nmetformin\n\n# comment line\nParkinson\n")
	locations := writeLexiconFile(t, "locations.txt", "Boston\nNew York\n")

	lex, err := lexicon.Load(medical, locations)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := lex.MedicalCount(); got != 3 {
		t.Errorf("MedicalCount() = %d, want 3", got)
	}
	if got := lex.LocationCount(); got != 2 {
		t.Errorf("LocationCount() = %d, want 2", got)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Parallel()
	locations := writeLexiconFile(t, "locations.txt", "Boston\n")

	_, err := lexicon.Load(filepath.Join(t.TempDir(), "nope.txt"), locations)
	if err == nil {
		t.Fatal("expected error for missing medical file, got nil")
	}
}

func TestIsMedicalTerm_CaseInsensitive(t *testing.T) {
	t.Parallel()
	lex := lexicon.New([]string{"Lisinopril"}, nil)

	for _, term := range []string{"lisinopril", "LISINOPRIL", "Lisinopril", "  lisinopril  "} {
		if !lex.IsMedicalTerm(term) {
			t.Errorf("IsMedicalTerm(%q) = false, want true", term)
		}
	}
	if lex.IsMedicalTerm("metformin") {
		t.Error("IsMedicalTerm(metformin) = true for term not in list")
	}
}

func TestIsLocation_CaseInsensitive(t *testing.T) {
	t.Parallel()
	lex := lexicon.New(nil, []string{"Boston", "New York"})

	if !lex.IsLocation("boston") {
		t.Error("IsLocation(boston) = false, want true")
	}
	if !lex.IsLocation("NEW YORK") {
		t.Error("IsLocation(NEW YORK) = false, want true")
	}
	if lex.IsLocation("Chicago") {
		t.Error("IsLocation(Chicago) = true for name not in list")
	}
}
