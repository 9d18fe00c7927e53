// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/config"
	"github.com/aitoolsdir/harvester/internal/logging"
)

// errBadConfig marks failures that are the operator's fault, not the
// program's. Commands exit with code 2 for these.
var errBadConfig = errors.New("invalid configuration")

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Seeds an AI tools catalog from curated directory sites.",
		Long: `harvester crawls a configured list of AI tool directories, extracts
tool metadata from each listing page, stages the deduplicated results as a
CSV artifact, and upserts them into the catalog database for review.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./harvester.yaml)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute runs the root command and maps failures to exit codes: 2 for
// configuration problems, 1 for everything else.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errBadConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig reads the configured file and builds the run logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: %v", errBadConfig, err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
