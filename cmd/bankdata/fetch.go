package main

import (
	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		fetchOpts pipeline.FetchOptions
		noSinks   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [start_date] [end_date]",
		Short: "Fetch transactions from Plaid and cache them locally",
		Long: `fetch resolves an access token, downloads every page of transactions in
the range and writes them to <output-dir>/transactions_<start>_to_<end>.txt.
Dates are YYYY-MM-DD. Without dates the last --days are fetched; with only a
start date the range ends today; with only an end date it starts --days
earlier.

Records are then copied to every configured sink (SQLite, BigQuery, GCS and
Notion). Sink failures are reported but do not fail the command.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) > 0 {
				if fetchOpts.Start, err = parseOptionalDate(args[0], "start_date"); err != nil {
					return err
				}
			}
			if len(args) > 1 {
				if fetchOpts.End, err = parseOptionalDate(args[1], "end_date"); err != nil {
					return err
				}
			}

			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			log := logger.FromContext(ctx)

			var sinks []pipeline.PipelineStep
			if !noSinks {
				steps, closeSinks, err := pipeline.BuildSinks(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() {
					if err := closeSinks(); err != nil {
						log.Warn().Err(err).Msg("Failed to close sinks")
					}
				}()
				sinks = steps
			}

			p, err := newPipeline(cfg, sinks...)
			if err != nil {
				return err
			}
			res, err := p.FetchAndSave(ctx, fetchOpts)
			if err != nil {
				return err
			}

			log.Info().
				Int("count", res.TotalTransactions).
				Str("start_date", res.StartDate).
				Str("end_date", res.EndDate).
				Str("file_path", res.FilePath).
				Msg("Fetched transactions")
			for name, msg := range res.SinkErrors {
				log.Warn().Str("sink", name).Str("error", msg).Msg("Sink failed")
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&fetchOpts.DaysBack, "days", 0, "Number of days to look back when dates are not provided (default: PLAID_LOOKBACK_DAYS)")
	flags.StringVar(&fetchOpts.ItemID, "item-id", "", "Prefer transactions for the specified Plaid item_id")
	flags.StringVar(&fetchOpts.OutputDir, "output-dir", "", "Directory where the transaction file is written (default: DATA_DIR)")
	flags.BoolVar(&noSinks, "no-sinks", false, "Only write the flat file")
	return cmd
}
