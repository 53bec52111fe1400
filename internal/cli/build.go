package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/halcyonhealth/phiredact/internal/config"
	"github.com/halcyonhealth/phiredact/internal/extract"
	"github.com/halcyonhealth/phiredact/internal/lexicon"
	"github.com/halcyonhealth/phiredact/internal/mapstore"
	"github.com/halcyonhealth/phiredact/internal/notegen"
	"github.com/halcyonhealth/phiredact/internal/observe"
	"github.com/halcyonhealth/phiredact/internal/redact"
	"github.com/halcyonhealth/phiredact/internal/resilience"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm/anyllm"
)

// loadConfig reads the config file named by --config and installs the
// configured log level as the process default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)}))
}

// newServerLogger is the JSON variant used by the serve command, where log
// lines are scraped rather than read.
func newServerLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLexicon loads the configured word lists. Missing config falls back to
// empty lists so rules-only redaction still works out of the box.
func buildLexicon(cfg *config.Config) (*lexicon.Store, error) {
	if cfg.Lexicon.MedicalPath == "" && cfg.Lexicon.LocationsPath == "" {
		return lexicon.New(nil, nil), nil
	}
	return lexicon.Load(cfg.Lexicon.MedicalPath, cfg.Lexicon.LocationsPath)
}

// buildExtractionProvider constructs the local extraction backend, wrapping
// it in a circuit-breaking fallback group when fallbacks are configured.
// Returns nil when no extraction provider is configured; the pipeline then
// runs rules-only.
func buildExtractionProvider(cfg *config.Config) (llm.Provider, error) {
	primary := cfg.Providers.Extraction
	if primary.Name == "" {
		return nil, nil
	}

	p, err := buildBackend(primary)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.ExtractionFallbacks) == 0 {
		return p, nil
	}

	group := resilience.NewLLMFallback(p, primary.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.ExtractionFallbacks {
		fb, err := buildBackend(entry)
		if err != nil {
			return nil, err
		}
		group.AddFallback(entry.Name, fb)
	}
	return group, nil
}

func buildBackend(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	p, err := anyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("build %q provider: %w", entry.Name, err)
	}
	return p, nil
}

// buildPipeline assembles the redaction pipeline around lex and an optional
// extraction provider.
func buildPipeline(cfg *config.Config, lex *lexicon.Store, provider llm.Provider, metrics *observe.Metrics) (*redact.Pipeline, error) {
	opts := []redact.PipelineOption{
		redact.WithLogger(slog.Default()),
	}
	if metrics != nil {
		opts = append(opts, redact.WithObserveMetrics(metrics))
	}

	if provider != nil {
		exOpts := []extract.Option{
			extract.WithTimeout(cfg.Redaction.ExtractionTimeout()),
		}
		if metrics != nil {
			exOpts = append(exOpts, extract.WithObserveMetrics(metrics))
		}
		opts = append(opts, redact.WithExtractor(extract.New(provider, exOpts...)))
	}

	return redact.NewPipeline(lex, opts...)
}

// buildDrafter constructs the cloud note-generation client. Returns nil when
// notegen is not configured. The API key falls back to OPENAI_API_KEY.
func buildDrafter(cfg *config.Config, metrics *observe.Metrics) (notegen.Drafter, error) {
	entry := cfg.Providers.NoteGen
	if entry.Name == "" {
		return nil, nil
	}
	apiKey := entry.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	var opts []notegen.Option
	if entry.BaseURL != "" {
		opts = append(opts, notegen.WithBaseURL(entry.BaseURL))
	}
	if metrics != nil {
		opts = append(opts, notegen.WithObserveMetrics(metrics))
	}
	return notegen.New(apiKey, entry.Model, opts...)
}

// buildMapStore opens the configured bbolt mapping store, or an in-memory
// store when no path is configured.
func buildMapStore(cfg *config.Config) (mapstore.Store, error) {
	if cfg.MapStore.Path == "" {
		return mapstore.NewMemory(), nil
	}
	return mapstore.OpenBolt(cfg.MapStore.Path)
}

// defaultMode resolves the configured default redaction mode.
func defaultMode(cfg *config.Config) config.Mode {
	if cfg.Redaction.DefaultMode != "" {
		return cfg.Redaction.DefaultMode
	}
	return config.ModeTag
}
