package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"extraction": {"ollama", "llamacpp", "llamafile"},
	"notegen":    {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Redaction
	if cfg.Redaction.DefaultMode != "" && !cfg.Redaction.DefaultMode.IsValid() {
		errs = append(errs, fmt.Errorf("redaction.default_mode %q is invalid; valid values: tag, reversible", cfg.Redaction.DefaultMode))
	}
	if cfg.Redaction.ExtractionTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("redaction.extraction_timeout_seconds must not be negative"))
	}

	// Lexicons
	if cfg.Lexicon.MedicalPath == "" {
		slog.Warn("lexicon.medical_path is empty; medical terms will not be protected from redaction")
	}
	if cfg.Lexicon.LocationsPath == "" {
		slog.Warn("lexicon.locations_path is empty; the dictionary layer will detect no locations")
	}

	// Provider name validation
	validateProviderName("extraction", cfg.Providers.Extraction.Name)
	for _, entry := range cfg.Providers.ExtractionFallbacks {
		validateProviderName("extraction", entry.Name)
	}
	validateProviderName("notegen", cfg.Providers.NoteGen.Name)

	// The extraction layer receives raw transcript text; only local
	// backends are allowed there.
	if name := cfg.Providers.Extraction.Name; name != "" && !isLocalExtraction(name) {
		errs = append(errs, fmt.Errorf("providers.extraction.name %q is not a local backend; transcripts must not leave the device", name))
	}
	for i, entry := range cfg.Providers.ExtractionFallbacks {
		if entry.Name != "" && !isLocalExtraction(entry.Name) {
			errs = append(errs, fmt.Errorf("providers.extraction_fallbacks[%d].name %q is not a local backend; transcripts must not leave the device", i, entry.Name))
		}
	}

	if cfg.Providers.Extraction.Name == "" {
		slog.Warn("providers.extraction is not configured; redaction will run rules-only")
	}

	// Note generation
	if cfg.Providers.NoteGen.Name != "" {
		if cfg.Providers.NoteGen.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			errs = append(errs, fmt.Errorf("providers.notegen.api_key is required when providers.notegen is configured (or set OPENAI_API_KEY)"))
		}
		if cfg.Providers.NoteGen.Model == "" {
			errs = append(errs, fmt.Errorf("providers.notegen.model is required when providers.notegen is configured"))
		}
	}

	// Persistence
	if cfg.MapStore.Path == "" {
		slog.Warn("mapstore.path is empty; restoration mappings will not be persisted")
	}
	if cfg.Audit.PostgresDSN == "" {
		slog.Warn("audit.postgres_dsn is empty; invocation metrics will not be recorded")
	}

	return errors.Join(errs...)
}

// isLocalExtraction reports whether name refers to a backend that runs on the
// same host.
func isLocalExtraction(name string) bool {
	return slices.Contains(ValidProviderNames["extraction"], name)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
