package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/neboloop/texbridge/cmd/texbridge"
	"github.com/neboloop/texbridge/internal/config"
)

//go:embed etc/texbridge.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load embedded config (defaults)
	c, err := config.LoadFromBytes(embeddedConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load embedded config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(&c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
