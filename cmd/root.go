// Package cmd defines and implements the CLI commands for the legal-crawler executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/config"
	"github.com/JakeFAU/legal-corpus-crawler/internal/logging"
)

var cfgFile string

type configKeyType string

const configKey configKeyType = "config"

// loadConfig is a variable so tests can inject configuration without a file.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legal-crawler",
		Short: "Builds a text corpus from the PDFs published on legal websites.",
		Long: `legal-crawler walks configured legal-information sites, downloads every
PDF it finds within scope, extracts the text, and publishes the resulting
corpus as one record per document.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logging.InitLogger(cfg.Logging.Development); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logging.L.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/crawler.yaml", "config file (YAML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSitesCmd())

	return cmd
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}
