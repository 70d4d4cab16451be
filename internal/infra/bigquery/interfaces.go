package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// TransactionSink receives fetched records.
type TransactionSink interface {
	InsertRecords(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error)
}

// TransactionRepository holds a shared BigQuery client bound to one dataset.
type TransactionRepository struct {
	client  *bigquery.Client
	dataset string
	now     func() time.Time
}

var _ TransactionSink = (*TransactionRepository)(nil)

// NewTransactionRepository creates the client and makes sure the table exists.
func NewTransactionRepository(ctx context.Context, projectID, dataset string) (*TransactionRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionRepository: creating client: %w", err)
	}
	if err := EnsureTransactionsTableWithClient(ctx, client, dataset); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewTransactionRepository: %w", err)
	}
	return &TransactionRepository{client: client, dataset: dataset, now: time.Now}, nil
}

func (r *TransactionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertRecords converts and streams records; it fails before inserting
// anything if a record cannot be converted.
func (r *TransactionRepository) InsertRecords(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error) {
	loadedAt := r.now()
	rows := make([]*TransactionRow, 0, len(records))
	for _, rec := range records {
		row, err := RowFromRecord(rec, itemID, loadedAt)
		if err != nil {
			return 0, fmt.Errorf("InsertRecords: %w", err)
		}
		rows = append(rows, row)
	}
	if err := InsertTransactionsWithClient(ctx, r.client, r.dataset, rows); err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("item_id", itemID).Int("count", len(rows)).Msg("Inserted records into BigQuery")
	return len(rows), nil
}

// QueryRecords returns records dated within [start, end].
func (r *TransactionRepository) QueryRecords(ctx context.Context, start, end time.Time) ([]domain.TransactionRecord, error) {
	rows, err := QueryTransactionsByDateRangeWithClient(ctx, r.client, r.dataset, start, end)
	if err != nil {
		return nil, err
	}
	records := make([]domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}
	return records, nil
}
