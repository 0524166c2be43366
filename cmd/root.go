// Package cmd defines the site-ingest CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-ingest/internal/config"
)

// loadConfig is a variable so tests can inject configuration.
var loadConfig = config.Load

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "site-ingest",
		Short: "Crawls websites into navigable page and section maps.",
		Long: `site-ingest renders third-party websites, extracts their pages into
summarized sections with stable anchors, and serves the resulting site maps
over HTTP. Crawls are queued through the API and run by a background poller.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	load := func() (*config.Config, error) {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return &cfg, nil
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newCrawlCmd(load))
	cmd.AddCommand(newMigrateCmd(load))
	return cmd
}

type configLoader func() (*config.Config, error)

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
