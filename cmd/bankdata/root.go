package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
	"github.com/dvloznov/bank-data-pipeline/internal/plaidclient"
)

const defaultTimeout = 5 * time.Minute

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	tokenStore string
	logLevel   string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "bankdata",
		Short: "Fetch, export and sync bank transactions through Plaid",
		Long: `bankdata connects bank accounts through Plaid Link, downloads their
transactions and keeps local and remote copies of them.

Example Usage:
  bankdata link                          # Create a Link token for the frontend
  bankdata exchange public-sandbox-...   # Exchange a public token and store it
  bankdata fetch --days 30               # Write data/transactions_<start>_to_<end>.txt
  bankdata download --format csv         # One-click download of the lookback window
  bankdata parse data/transactions_2024-01-01_to_2024-03-31.txt
  bankdata migrate                       # Create BigQuery reporting views`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("BANKDATA_CONFIG"), "Optional YAML config file (or set BANKDATA_CONFIG env)")
	flags.StringVar(&opts.tokenStore, "token-store", "", "Override the location used to persist exchanged access tokens")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "Overall deadline for the command")

	rootCmd.AddCommand(
		newLinkCmd(opts),
		newExchangeCmd(opts),
		newStoreAccessCmd(opts),
		newDownloadCmd(opts),
		newFetchCmd(opts),
		newParseCmd(opts),
		newMortgageRateCmd(opts),
		newInsightsCmd(opts),
		newSyncNotionCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads configuration, applies the persistent flag overrides and
// returns a context carrying the logger and the command deadline.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.tokenStore != "" {
		cfg.Plaid.TokenStorePath = o.tokenStore
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	log := logger.WithComponent(logger.NewConsole(cmd.ErrOrStderr(), cfg.LogLevel), cmd.Name())
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	return cfg, logger.WithContext(ctx, log), cancel, nil
}

// newPipeline validates the Plaid credentials and builds the pipeline.
func newPipeline(cfg *config.Config, sinks ...pipeline.PipelineStep) (*pipeline.BankDataPipeline, error) {
	creds, err := bank.LoadCredentials(cfg.Plaid)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, plaidclient.New(creds), sinks...), nil
}

func parseOptionalDate(value, flag string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := bank.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}
