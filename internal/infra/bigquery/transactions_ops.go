package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

const transactionsTable = "transactions"

// EnsureTransactionsTableWithClient creates the date-partitioned table if missing.
func EnsureTransactionsTableWithClient(ctx context.Context, client *bigquery.Client, dataset string) error {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTransactionsTable: infer schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "transaction_date"},
	}
	err = client.Dataset(dataset).Table(transactionsTable).Create(ctx, meta)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTransactionsTable: create: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("dataset", dataset).Msg("Created transactions table")
	return nil
}

// InsertTransactionsWithClient streams rows into dataset.transactions.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.Dataset(dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// QueryTransactionsByDateRangeWithClient returns the latest load of each
// transaction dated within [start, end].
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, dataset string, start, end time.Time) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT * EXCEPT(rn) FROM (
			SELECT t.*, ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY loaded_ts DESC) AS rn
			FROM `+"`%s.%s.%s`"+` t
			WHERE t.transaction_date BETWEEN @start_date AND @end_date
		)
		WHERE rn = 1
		ORDER BY transaction_date, transaction_id
	`, client.Project(), dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: civil.DateOf(start)},
		{Name: "end_date", Value: civil.DateOf(end)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
