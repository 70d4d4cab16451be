// Package notionsync mirrors fetched transactions into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// Options controls a sync run.
type Options struct {
	DryRun bool
	// Prune archives pages whose transaction id is not in the synced set.
	Prune bool
}

// Stats counts what a sync did (or would do, on a dry run).
type Stats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncRecords upserts records into databaseID keyed by transaction id.
// Per-page failures are logged and counted; listing failures abort.
func SyncRecords(ctx context.Context, svc NotionService, databaseID, itemID string, records []domain.TransactionRecord, opts Options) (Stats, error) {
	log := logger.FromContext(ctx)
	log.Info().
		Int("count", len(records)).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting Notion sync")

	pages, err := queryAllPages(ctx, svc, databaseID)
	if err != nil {
		return Stats{}, fmt.Errorf("SyncRecords: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, p := range pages {
		if id := transactionIDOf(p); id != "" {
			existing[id] = string(p.ID)
		}
	}

	var stats Stats
	wanted := make(map[string]bool, len(records))
	for _, r := range records {
		wanted[r.TransactionID] = true
		props := RecordToProperties(r, itemID)
		pageID, found := existing[r.TransactionID]

		switch {
		case opts.DryRun && found:
			stats.Updated++
		case opts.DryRun:
			stats.Created++
		case found:
			if _, err := svc.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("transaction_id", r.TransactionID).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
		default:
			if _, err := svc.CreatePage(ctx, databaseID, props); err != nil {
				log.Warn().Err(err).Str("transaction_id", r.TransactionID).Msg("Failed to create Notion page")
				stats.Failed++
				continue
			}
			stats.Created++
		}
	}

	if opts.Prune {
		for _, p := range pages {
			if wanted[transactionIDOf(p)] {
				continue
			}
			if !opts.DryRun {
				if err := svc.ArchivePage(ctx, string(p.ID)); err != nil {
					log.Warn().Err(err).Str("page_id", string(p.ID)).Msg("Failed to archive stale Notion page")
					stats.Failed++
					continue
				}
			}
			stats.Archived++
		}
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Notion sync completed")
	return stats, nil
}

func queryAllPages(ctx context.Context, svc NotionService, databaseID string) ([]notionapi.Page, error) {
	var (
		all    []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := svc.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
