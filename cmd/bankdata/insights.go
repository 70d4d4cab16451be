package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/insights"
	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/txfile"
	"github.com/dvloznov/bank-data-pipeline/internal/txstore"
)

func newInsightsCmd(opts *rootOptions) *cobra.Command {
	var (
		asCSV       bool
		fromStore   bool
		sign        string
		state       string
		categories  []string
		withTip     bool
		ruleOfThumb bool
		llmOpts     llm.Options
	)

	cmd := &cobra.Command{
		Use:   "insights [file]",
		Short: "Benchmark monthly spending by category",
		Long: `insights reads transactions from a flat transaction file, a bank CSV export
(--csv or a .csv file) or the SQLite record store (--from-store), averages
spend per category over the months covered and compares it with typical
household spending.

Flat files and the record store hold Plaid amounts, where positive is spend.
CSV exports default to negative-is-spend. Override with --sign.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			log := logger.FromContext(ctx)

			var (
				src        txfile.Source
				convention = insights.PositiveIsSpend
			)
			switch {
			case fromStore:
				if cfg.Sinks.SQLitePath == "" {
					return &bank.ConfigurationError{Message: "TXSTORE_PATH must be set to read from the record store"}
				}
				store, err := txstore.Open(ctx, cfg.Sinks.SQLitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				src = store
			case len(args) == 0:
				return errors.New("a transaction file or --from-store is required")
			case asCSV || strings.EqualFold(filepath.Ext(args[0]), ".csv"):
				src = txfile.CSVSource{Path: args[0]}
				convention = insights.NegativeIsSpend
			default:
				src = txfile.FileSource{Path: args[0]}
			}

			switch strings.ToLower(sign) {
			case "":
			case "positive":
				convention = insights.PositiveIsSpend
			case "negative":
				convention = insights.NegativeIsSpend
			default:
				return fmt.Errorf("--sign must be positive or negative, got %q", sign)
			}

			records, err := src.Load(ctx)
			if err != nil {
				return err
			}
			items := insights.ItemsFromParsed(records)
			spend := insights.MonthlySpendByCategory(items, convention)

			var generator llm.Generator
			if !ruleOfThumb {
				if generator, err = llm.New(ctx, llmOpts.Apply(cfg.LLM)); err != nil {
					log.Warn().Err(err).Msg("LLM backend unavailable, using rule of thumb")
					generator = nil
				}
			}
			report := insights.NewBenchmarker(generator, time.Hour).Compare(ctx, spend, state, categories)

			out := map[string]any{
				"transactions": len(records),
				"user_spend":   spend,
				"report":       report,
			}
			if withTip {
				out["tip"] = insights.FinanceTip(ctx, generator, items)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&asCSV, "csv", false, "Treat the file as a bank CSV export")
	flags.BoolVar(&fromStore, "from-store", false, "Read transactions from the SQLite record store (TXSTORE_PATH)")
	flags.StringVar(&sign, "sign", "", "Amount convention: positive or negative is spend")
	flags.StringVar(&state, "state", "", "US state used for regional averages")
	flags.StringSliceVar(&categories, "category", nil, "Limit the comparison to these categories")
	flags.BoolVar(&withTip, "tip", false, "Also ask the LLM for one finance tip")
	flags.BoolVar(&ruleOfThumb, "rule-of-thumb", false, "Skip the LLM and use built-in averages")
	flags.StringVar(&llmOpts.Model, "model", "", "Model for the selected LLM backend")
	flags.BoolVar(&llmOpts.UseOpenAI, "use-openai", false, "Use the OpenAI backend (OPENAI_API_KEY) for this run")
	return cmd
}
