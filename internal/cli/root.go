// Package cli wires the actra commands together.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/actra/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "actra",
	Short: "A declarative federated social-action engine",
	Long: `Actra executes federated social actions against declarative
type definitions:

  - JSON/YAML action-type definitions with field and content validation
  - Lifecycle hooks written as declarative operation trees
  - CEL permission rules for creating and receiving actions
  - SQLite-backed action and profile storage
  - Token-signed, at-least-once federation delivery

Start the engine:
  actra serve

Check a definition file:
  actra validate definitions/POST.json`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./actra.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func setupLogging() {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// applyLogging tightens logging once the config is known.
func applyLogging(cfg *config.Config) {
	if verbose {
		return
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		zerolog.SetGlobalLevel(level)
	}
	if !cfg.Logging.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
