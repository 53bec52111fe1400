// Package cli implements the phiredact command-line interface.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "phiredact",
	Short: "phiredact - PII/PHI redaction for clinical transcripts",
	Long: `phiredact removes patient-identifying information from clinical visit
transcripts before the text leaves the device. Detection runs in three
layers: deterministic rules, a location dictionary, and a local language
model whose every suggestion is validated against the source text.

Redaction is available in two modes: tag mode replaces entities with
category tags like [PERSON], reversible mode replaces them with numbered
placeholders and keeps a local restoration mapping.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")
}

// Execute runs the root command. A .env file in the working directory is
// loaded first so API keys can live outside the config file.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.Execute()
}
