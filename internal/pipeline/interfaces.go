package pipeline

import (
	"context"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// RecordSaver receives serialized records after a fetch. The SQLite store and
// the BigQuery repository are adapted to it by the sink steps.
type RecordSaver interface {
	SaveRecords(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error)
}

// RecordSaverFunc adapts a function to RecordSaver.
type RecordSaverFunc func(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error)

func (f RecordSaverFunc) SaveRecords(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error) {
	return f(ctx, itemID, records)
}
