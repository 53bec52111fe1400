// Package lexicon loads and holds the two vocabulary sets that steer the
// redaction engine:
//
//   - the medical allow-list: terms that must never be redacted, even when a
//     detector or the extraction model flags them (e.g., a drug name that is
//     also a surname);
//   - the location deny-list: place names that are always redacted when they
//     appear title-cased in a transcript.
//
// Both sets are loaded once at startup from newline-delimited UTF-8 text
// files (one term per line, '#'-prefixed lines ignored) and are immutable
// afterwards, so a single Store may be shared across concurrent pipeline
// invocations without locking.
package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Store holds the medical allow-list and location deny-list as lowercase
// hash sets. Immutable after construction.
type Store struct {
	medical   map[string]struct{}
	locations map[string]struct{}
}

// Load reads both lexicon files from disk and returns a ready Store.
// A missing or malformed file is a fatal initialization error for the
// caller: redaction must not start with partial lexicons.
func Load(medicalPath, locationsPath string) (*Store, error) {
	medical, err := loadFile(medicalPath)
	if err != nil {
		return nil, fmt.Errorf("lexicon: load medical allow-list %q: %w", medicalPath, err)
	}
	locations, err := loadFile(locationsPath)
	if err != nil {
		return nil, fmt.Errorf("lexicon: load location deny-list %q: %w", locationsPath, err)
	}
	return &Store{medical: medical, locations: locations}, nil
}

// New builds a Store directly from term slices. Used in tests and by callers
// that embed their lexicons. Terms are lowercased; empty terms are dropped.
func New(medical, locations []string) *Store {
	return &Store{
		medical:   toSet(medical),
		locations: toSet(locations),
	}
}

// IsMedicalTerm reports whether term (case-insensitive) is in the medical
// allow-list.
func (s *Store) IsMedicalTerm(term string) bool {
	_, ok := s.medical[strings.ToLower(strings.TrimSpace(term))]
	return ok
}

// IsLocation reports whether term (case-insensitive) is in the location
// deny-list.
func (s *Store) IsLocation(term string) bool {
	_, ok := s.locations[strings.ToLower(strings.TrimSpace(term))]
	return ok
}

// MedicalCount returns the number of allow-list terms. Used for startup
// logging and readiness checks.
func (s *Store) MedicalCount() int { return len(s.medical) }

// LocationCount returns the number of deny-list terms.
func (s *Store) LocationCount() int { return len(s.locations) }

// loadFile reads one newline-delimited term file into a lowercase set.
func loadFile(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// parse reads newline-delimited terms from r. Blank lines and lines starting
// with '#' are skipped. Terms are lowercased and trimmed.
func parse(r io.Reader) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read terms: %w", err)
	}
	return set, nil
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}
