package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonhealth/phiredact/internal/config"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

var (
	redactMode string
	redactJSON bool
)

var redactCmd = &cobra.Command{
	Use:   "redact [file...]",
	Short: "Redact transcripts from files or stdin",
	Long: `Redact one or more transcript files, or stdin when no files are given.

With files, each FILE produces FILE.redacted (the redacted text) and, in
reversible mode, FILE.mapping.json (the restoration mapping; keep it local).
Files are processed concurrently.

With stdin, the redacted text is written to stdout. Pass --json to get the
full result (output, entities, mapping, metrics) as JSON instead.

  phiredact redact visit1.txt visit2.txt --mode reversible
  cat visit.txt | phiredact redact --mode tag`,
	RunE: redactCommand,
}

func init() {
	redactCmd.Flags().StringVar(&redactMode, "mode", "", "Redaction mode: tag or reversible (default from config)")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "Emit the full result as JSON (stdin input only)")
	rootCmd.AddCommand(redactCmd)
}

func redactCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mode := defaultMode(cfg)
	if redactMode != "" {
		mode = config.Mode(redactMode)
		if !mode.IsValid() {
			return fmt.Errorf("invalid --mode %q; valid values: tag, reversible", redactMode)
		}
	}

	lex, err := buildLexicon(cfg)
	if err != nil {
		return err
	}
	provider, err := buildExtractionProvider(cfg)
	if err != nil {
		return err
	}
	pipeline, err := buildPipeline(cfg, lex, provider, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if len(args) == 0 {
		return redactStdin(ctx, pipeline, mode)
	}
	return redactFiles(ctx, pipeline, mode, args)
}

func redactStdin(ctx context.Context, pipeline *redact.Pipeline, mode config.Mode) error {
	text, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	res := runPipeline(ctx, pipeline, mode, string(text))
	if redactJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Mode     string            `json:"mode"`
			Output   string            `json:"output"`
			Entities []redact.Span     `json:"entities"`
			Mapping  map[string]string `json:"mapping,omitempty"`
		}{string(mode), res.Output, res.Entities, res.Mapping})
	}

	fmt.Println(res.Output)
	if mode == config.ModeReversible {
		fmt.Fprintln(os.Stderr, "note: restoration mapping discarded; use --json or file input to keep it")
	}
	return nil
}

func redactFiles(ctx context.Context, pipeline *redact.Pipeline, mode config.Mode, files []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %q: %w", file, err)
			}

			res := runPipeline(ctx, pipeline, mode, string(text))
			outPath := file + ".redacted"
			if err := os.WriteFile(outPath, []byte(res.Output), 0o600); err != nil {
				return fmt.Errorf("write %q: %w", outPath, err)
			}
			if mode == config.ModeReversible {
				data, err := json.MarshalIndent(res.Mapping, "", "  ")
				if err != nil {
					return fmt.Errorf("encode mapping for %q: %w", file, err)
				}
				mapPath := file + ".mapping.json"
				if err := os.WriteFile(mapPath, data, 0o600); err != nil {
					return fmt.Errorf("write %q: %w", mapPath, err)
				}
			}

			fmt.Fprintf(os.Stderr, "%s: %d entities redacted (llm_enabled=%t)\n",
				file, len(res.Entities), res.Metrics.LLMEnabled)
			return nil
		})
	}
	return g.Wait()
}

func runPipeline(ctx context.Context, pipeline *redact.Pipeline, mode config.Mode, text string) *redact.Result {
	if mode == config.ModeReversible {
		return pipeline.RedactReversible(ctx, text)
	}
	return pipeline.RedactTags(ctx, text)
}
