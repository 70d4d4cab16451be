package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStoredToken(w io.Writer, stored bank.StoredToken, storePath string) error {
	return printJSON(w, map[string]any{
		"access_token": bank.MaskToken(stored.AccessToken),
		"item_id":      stored.ItemID,
		"source":       stored.Source,
		"token_store":  storePath,
	})
}

func newLinkCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create a Plaid Link token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			token, err := p.CreateLinkToken(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", pipeline.DefaultUserID, "Client user id sent to Plaid")
	return cmd
}

func newExchangeCmd(opts *rootOptions) *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "exchange <public-token>",
		Short: "Exchange a Link public token and store the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			stored, err := p.ExchangePublicToken(ctx, args[0], itemID)
			if err != nil {
				return err
			}
			return printStoredToken(cmd.OutOrStdout(), stored, p.TokenStorePath())
		},
	}
	cmd.Flags().StringVar(&itemID, "item-id", "", "Item id to record when Plaid does not return one")
	return cmd
}

func newStoreAccessCmd(opts *rootOptions) *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "store-access <access-token>",
		Short: "Validate and store an existing access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			stored, err := p.StoreAccessToken(ctx, args[0], itemID, bank.SourceManual)
			if err != nil {
				return err
			}
			return printStoredToken(cmd.OutOrStdout(), stored, p.TokenStorePath())
		},
	}
	cmd.Flags().StringVar(&itemID, "item-id", "", "Plaid item id the token belongs to")
	return cmd
}

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var (
		req    pipeline.DownloadRequest
		output string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the lookback window and write it in a download format",
		Long: `download optionally exchanges a public token or stores an access token,
fetches the last --days of transactions and writes them as json, csv, txt or
xlsx. Without --output the file is named bank_transactions_<timestamp>.<ext>
in the current directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, cancel, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			res, err := p.OneClickDownload(ctx, req)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = res.Filename
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return &bank.FileIOError{Op: "create directory", Path: dir, Err: err}
				}
			}
			if err := os.WriteFile(path, res.Data, 0o644); err != nil {
				return &bank.FileIOError{Op: "write", Path: path, Err: err}
			}

			log := logger.FromContext(ctx)
			log.Info().
				Str("path", path).
				Int("count", res.Metadata.TotalTransactions).
				Msg("Download written")
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"file_path": path,
				"metadata":  res.Metadata,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.UserID, "user", pipeline.DefaultUserID, "User id recorded in the download metadata")
	flags.IntVar(&req.DaysBack, "days", 0, "Number of days to look back (default: PLAID_LOOKBACK_DAYS)")
	flags.StringVar(&req.Format, "format", "json", "Output format: json, csv, txt or xlsx")
	flags.StringVar(&req.PublicToken, "public-token", "", "Exchange this public token before fetching")
	flags.StringVar(&req.AccessToken, "access-token", "", "Store and use this access token")
	flags.StringVar(&req.ItemID, "item-id", "", "Prefer transactions for the specified Plaid item_id")
	flags.StringVarP(&output, "output", "o", "", "Output file path")
	return cmd
}
