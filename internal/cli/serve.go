package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/halcyonhealth/phiredact/internal/audit"
	"github.com/halcyonhealth/phiredact/internal/health"
	"github.com/halcyonhealth/phiredact/internal/observe"
	"github.com/halcyonhealth/phiredact/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the redaction HTTP server",
	Long: `Start the phiredact HTTP API. The server exposes redaction and
restoration endpoints, the note drafting round trip, health probes, and
Prometheus metrics on /metrics.

  phiredact serve --config config.yaml`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(newServerLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every later component can record metrics.
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	lex, err := buildLexicon(cfg)
	if err != nil {
		return err
	}
	provider, err := buildExtractionProvider(cfg)
	if err != nil {
		return err
	}
	pipeline, err := buildPipeline(cfg, lex, provider, metrics)
	if err != nil {
		return err
	}

	maps, err := buildMapStore(cfg)
	if err != nil {
		return err
	}
	defer maps.Close()

	drafter, err := buildDrafter(cfg, metrics)
	if err != nil {
		return err
	}

	checkers := []health.Checker{health.LexiconChecker(lex)}

	var auditor audit.Store = audit.NoopStore{}
	if cfg.Audit.PostgresDSN != "" {
		pg, err := audit.NewPostgresStore(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		auditor = pg
		checkers = append(checkers, health.AuditChecker(pg))
	}

	if provider != nil {
		checkers = append(checkers, health.ExtractionChecker(provider))
	}

	opts := []server.Option{
		server.WithDefaultMode(defaultMode(cfg)),
		server.WithMapStore(maps),
		server.WithAuditStore(auditor),
		server.WithHealth(health.New(checkers...)),
		server.WithObserveMetrics(metrics),
		server.WithLogger(slog.Default()),
	}
	if drafter != nil {
		opts = append(opts, server.WithDrafter(drafter))
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.ListenAddr
	}
	if addr == "" {
		addr = ":8080"
	}

	slog.Info("phiredact starting",
		"addr", addr,
		"default_mode", defaultMode(cfg),
		"extraction", cfg.Providers.Extraction.Name,
		"notegen", cfg.Providers.NoteGen.Name,
	)
	return server.New(pipeline, opts...).Run(ctx, addr)
}
