package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonhealth/phiredact/internal/notegen"
)

var noteCmd = &cobra.Command{
	Use:   "note [file]",
	Short: "Draft a clinical note from a transcript via the cloud model",
	Long: `Redact the transcript reversibly, send only the placeholder text to the
configured cloud model for note drafting, then restore the original values
locally. The raw transcript never leaves the device.

Requires providers.notegen in the config file.

  phiredact note visit.txt > note.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: noteCommand,
}

func init() {
	rootCmd.AddCommand(noteCmd)
}

func noteCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	drafter, err := buildDrafter(cfg, nil)
	if err != nil {
		return err
	}
	if drafter == nil {
		return fmt.Errorf("providers.notegen is not configured")
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

	var text []byte
	if len(args) == 1 {
		text, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %q: %w", args[0], err)
		}
	} else {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	ctx := cmd.Context()
	res := pipeline.RedactReversible(ctx, string(text))
	note, err := notegen.GenerateNote(ctx, drafter, res)
	if err != nil {
		return err
	}

	fmt.Print(note)
	return nil
}
