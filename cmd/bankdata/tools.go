package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/gcsuploader"
	infra "github.com/dvloznov/bank-data-pipeline/internal/infra/bigquery"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/mortgage"
	"github.com/dvloznov/bank-data-pipeline/internal/notionsync"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
	"github.com/dvloznov/bank-data-pipeline/internal/txfile"
	"github.com/dvloznov/bank-data-pipeline/internal/txstore"
)

func newParseCmd(opts *rootOptions) *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a transaction file and print its records as JSON",
		Long: `parse reads a flat transaction file written by fetch, or a bank CSV export
when --csv is set or the file ends in .csv. A gs://bucket/object URI reads an
archived file from Cloud Storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			path := args[0]
			isCSV := asCSV || strings.EqualFold(filepath.Ext(path), ".csv")

			var res txfile.Result
			switch {
			case strings.HasPrefix(path, "gs://"):
				data, err := downloadObject(ctx, path)
				if err != nil {
					return err
				}
				res = parseBytes(ctx, data, isCSV)
			case isCSV:
				f, err := os.Open(path)
				if err != nil {
					return &bank.FileIOError{Op: "open", Path: path, Err: err}
				}
				defer f.Close()
				res = txfile.ParseCSV(ctx, f)
			default:
				res = txfile.Parse(ctx, path)
			}

			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("parse %s: %s", path, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Treat the file as a bank CSV export")
	return cmd
}

func downloadObject(ctx context.Context, uri string) ([]byte, error) {
	bucket, _, err := gcsuploader.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	archiver, err := gcsuploader.NewGCSArchiver(ctx, bucket)
	if err != nil {
		return nil, err
	}
	defer archiver.Close()
	return archiver.Download(ctx, uri)
}

func parseBytes(ctx context.Context, data []byte, isCSV bool) txfile.Result {
	if isCSV {
		return txfile.ParseCSV(ctx, bytes.NewReader(data))
	}
	records, err := txfile.ParseReader(ctx, bytes.NewReader(data))
	if err != nil {
		return txfile.Result{Success: false, Transactions: []txfile.ParsedRecord{}, Error: err.Error()}
	}
	return txfile.Result{Success: true, Transactions: records, Count: len(records)}
}

func newMortgageRateCmd(opts *rootOptions) *cobra.Command {
	var yourRate float64

	cmd := &cobra.Command{
		Use:   "mortgage-rate",
		Short: "Compare a mortgage rate with the latest 30-year fixed average",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if !cmd.Flags().Changed("your-rate") {
				yourRate = cfg.Mortgage.YourRate
			}
			obs, err := mortgage.NewClient(cfg.Mortgage.SeriesURL, cfg.Mortgage.CacheTTL).Latest(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), mortgage.NewAdvice(yourRate, obs))
		},
	}
	cmd.Flags().Float64Var(&yourRate, "your-rate", 0, "Your current rate in percent (default: MORTGAGE_YOUR_RATE)")
	return cmd
}

const (
	notionSourcePlaid    = "plaid"
	notionSourceSQLite   = "sqlite"
	notionSourceBigQuery = "bigquery"
)

func newSyncNotionCmd(opts *rootOptions) *cobra.Command {
	var (
		source    string
		daysBack  int
		startDate string
		endDate   string
		itemID    string
		syncOpts  notionsync.Options
	)

	cmd := &cobra.Command{
		Use:   "sync-notion",
		Short: "Upsert transactions into the configured Notion database",
		Long: `sync-notion reads transactions from Plaid (--source plaid), the SQLite
record store (--source sqlite) or the BigQuery sink (--source bigquery) and
upserts them into NOTION_DATABASE_ID keyed by transaction id. --prune archives pages whose
transaction is no longer in the synced set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseOptionalDate(startDate, "start-date")
			if err != nil {
				return err
			}
			end, err := parseOptionalDate(endDate, "end-date")
			if err != nil {
				return err
			}

			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
				return &bank.ConfigurationError{Message: "NOTION_TOKEN and NOTION_DATABASE_ID must be set to sync to Notion"}
			}

			var (
				records    []domain.TransactionRecord
				syncItemID = itemID
			)
			switch source {
			case notionSourcePlaid:
				p, err := newPipeline(cfg)
				if err != nil {
					return err
				}
				summary, err := p.GetTransactions(ctx, pipeline.TransactionsQuery{
					DaysBack: daysBack,
					Start:    start,
					End:      end,
					ItemID:   itemID,
				})
				if err != nil {
					return err
				}
				records, syncItemID = summary.Transactions, summary.ItemID
			case notionSourceSQLite:
				if cfg.Sinks.SQLitePath == "" {
					return &bank.ConfigurationError{Message: "TXSTORE_PATH must be set to sync from the record store"}
				}
				store, err := txstore.Open(ctx, cfg.Sinks.SQLitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				if records, err = store.Records(ctx, startDate, endDate); err != nil {
					return err
				}
			case notionSourceBigQuery:
				if cfg.Sinks.GCPProjectID == "" || cfg.Sinks.BigQueryDataset == "" {
					return &bank.ConfigurationError{Message: "GCP_PROJECT_ID and BIGQUERY_DATASET must be set to sync from BigQuery"}
				}
				if daysBack <= 0 {
					daysBack = cfg.Plaid.LookbackDays
				}
				dr, err := bank.DetermineDateRange(daysBack, start, end, time.Now())
				if err != nil {
					return err
				}
				repo, err := infra.NewTransactionRepository(ctx, cfg.Sinks.GCPProjectID, cfg.Sinks.BigQueryDataset)
				if err != nil {
					return err
				}
				defer repo.Close()
				if records, err = repo.QueryRecords(ctx, dr.Start, dr.End); err != nil {
					return err
				}
			default:
				return errors.New("--source must be plaid, sqlite or bigquery")
			}

			log := logger.FromContext(ctx)
			log.Info().
				Str("source", source).
				Int("count", len(records)).
				Msg("Loaded transactions for Notion sync")

			stats, err := notionsync.SyncRecords(ctx, notionsync.NewClient(cfg.Notion.Token), cfg.Notion.DatabaseID, syncItemID, records, syncOpts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&source, "source", notionSourcePlaid, "Where to read transactions from: plaid, sqlite or bigquery")
	flags.IntVar(&daysBack, "days", 0, "Number of days to look back when dates are not provided (plaid and bigquery sources)")
	flags.StringVar(&startDate, "start-date", "", "Start date in YYYY-MM-DD format")
	flags.StringVar(&endDate, "end-date", "", "End date in YYYY-MM-DD format")
	flags.StringVar(&itemID, "item-id", "", "Prefer transactions for the specified Plaid item_id")
	flags.BoolVar(&syncOpts.DryRun, "dry-run", false, "Report what would change without calling Notion")
	flags.BoolVar(&syncOpts.Prune, "prune", false, "Archive pages whose transaction is not in the synced set")
	return cmd
}
