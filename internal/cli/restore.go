package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonhealth/phiredact/internal/redact"
)

var restoreMappingPath string

var restoreCmd = &cobra.Command{
	Use:   "restore [file]",
	Short: "Restore placeholder tokens using a mapping file",
	Long: `Restore original values into reversibly redacted text. Reads the text
from FILE, or stdin when no file is given, and writes the restored text to
stdout. The mapping file is the FILE.mapping.json produced by redact.

  phiredact restore visit.txt.redacted --mapping visit.txt.mapping.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: restoreCommand,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreMappingPath, "mapping", "", "Path to the restoration mapping JSON file (required)")
	_ = restoreCmd.MarkFlagRequired("mapping")
	rootCmd.AddCommand(restoreCmd)
}

func restoreCommand(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(restoreMappingPath)
	if err != nil {
		return fmt.Errorf("read mapping %q: %w", restoreMappingPath, err)
	}
	var mapping redact.Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("decode mapping %q: %w", restoreMappingPath, err)
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

	fmt.Print(redact.Restore(string(text), mapping))
	return nil
}
