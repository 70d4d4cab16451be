package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	infra "github.com/dvloznov/bank-data-pipeline/internal/infra/bigquery"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var appliedBy string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending BigQuery migrations to the transactions dataset",
		Long: `migrate creates the transactions table if needed, then applies every
embedded SQL migration not yet recorded in schema_migrations
(GCP_PROJECT_ID and BIGQUERY_DATASET must be set).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if cfg.Sinks.GCPProjectID == "" || cfg.Sinks.BigQueryDataset == "" {
				return &bank.ConfigurationError{Message: "GCP_PROJECT_ID and BIGQUERY_DATASET must be set to migrate BigQuery"}
			}
			repo, err := infra.NewTransactionRepository(ctx, cfg.Sinks.GCPProjectID, cfg.Sinks.BigQueryDataset)
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := repo.Migrate(ctx, appliedBy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&appliedBy, "applied-by", "bankdata", "Name recorded with each applied migration")
	return cmd
}
