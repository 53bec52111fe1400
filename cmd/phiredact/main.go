// Command phiredact is the entry point for the phiredact CLI and server.
package main

import (
	"os"

	"github.com/halcyonhealth/phiredact/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
