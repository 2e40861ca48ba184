// Package main provides the relgraph CLI entry point.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/ritzau/relgraph/pkg/backend"
	"github.com/ritzau/relgraph/pkg/config"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ce *exitError
		if errors.As(err, &ce) {
			os.Exit(ce.code)
		}
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relgraph",
	Short: "Explore the relationship path between two entities",
	Long: `relgraph resolves two named entities against the relationship backend,
starts a path search between them and streams the resulting graph.

Run "relgraph serve" for the web front end, or use "resolve" and "search"
from the terminal.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default relgraph.toml if present)")
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.Version = Version
}

// loadConfig reads .env, then the layered configuration, and sets up logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return withExitCode(ExitConfigError, fmt.Errorf("loading .env: %w", err))
	}

	c, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	if err := logging.Configure(c.Log.Level, c.Log.JSON); err != nil {
		return withExitCode(ExitConfigError, err)
	}
	cfg = c
	logging.Debug("configuration loaded", "backend", cfg.Backend.URL, "port", cfg.Port)
	return nil
}

func newBackendClient(c *config.Config) *backend.Client {
	return backend.NewClient(
		backend.WithBaseURL(c.Backend.URL),
		backend.WithTimeout(c.Backend.Timeout),
		backend.WithRate(c.Backend.Rate),
	)
}
