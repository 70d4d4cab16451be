package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/gcsuploader"
	infra "github.com/dvloznov/bank-data-pipeline/internal/infra/bigquery"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/notionsync"
	"github.com/dvloznov/bank-data-pipeline/internal/txstore"
)

// BuildSinks opens every sink enabled in cfg and returns the steps in a fixed
// order (sqlite, bigquery, gcs, notion) with a func that closes them.
func BuildSinks(ctx context.Context, cfg *config.Config) ([]PipelineStep, func() error, error) {
	log := logger.FromContext(ctx)

	var (
		steps   []PipelineStep
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if path := cfg.Sinks.SQLitePath; path != "" {
		store, err := txstore.Open(ctx, path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("BuildSinks: sqlite: %w", err)
		}
		closers = append(closers, store.Close)
		steps = append(steps, &SaveRecordsStep{Name: "sqlite", Saver: store})
		log.Info().Str("path", path).Msg("SQLite sink enabled")
	}

	if cfg.Sinks.GCPProjectID != "" && cfg.Sinks.BigQueryDataset != "" {
		repo, err := infra.NewTransactionRepository(ctx, cfg.Sinks.GCPProjectID, cfg.Sinks.BigQueryDataset)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("BuildSinks: bigquery: %w", err)
		}
		closers = append(closers, repo.Close)
		steps = append(steps, &SaveRecordsStep{Name: "bigquery", Saver: RecordSaverFunc(repo.InsertRecords)})
		log.Info().Str("dataset", cfg.Sinks.BigQueryDataset).Msg("BigQuery sink enabled")
	}

	if bucket := cfg.Sinks.GCSBucket; bucket != "" {
		archiver, err := gcsuploader.NewGCSArchiver(ctx, bucket)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("BuildSinks: gcs: %w", err)
		}
		closers = append(closers, archiver.Close)
		steps = append(steps, &ArchiveFlatFileStep{Archiver: archiver})
		log.Info().Str("bucket", bucket).Msg("GCS archive enabled")
	}

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		steps = append(steps, &NotionSyncStep{
			Service:    notionsync.NewClient(cfg.Notion.Token),
			DatabaseID: cfg.Notion.DatabaseID,
		})
		log.Info().Msg("Notion sync enabled")
	}

	return steps, closeAll, nil
}
