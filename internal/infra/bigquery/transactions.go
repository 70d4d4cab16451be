// Package bigquery loads fetched transactions into a BigQuery table.
package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// TransactionRow is one row of the transactions table.
type TransactionRow struct {
	TransactionID   string              `bigquery:"transaction_id"` // REQUIRED
	ItemID          string              `bigquery:"item_id"`
	AccountID       string              `bigquery:"account_id"`
	AccountName     bigquery.NullString `bigquery:"account_name"`
	TransactionDate civil.Date          `bigquery:"transaction_date"` // partition column
	Amount          *big.Rat            `bigquery:"amount"`           // NUMERIC, positive = outflow
	Name            string              `bigquery:"name"`
	MerchantName    bigquery.NullString `bigquery:"merchant_name"`
	Category        []string            `bigquery:"category"` // REPEATED
	LoadedTS        time.Time           `bigquery:"loaded_ts"`
}

// RowFromRecord converts a serialized record. The amount goes through its
// decimal string form so NUMERIC receives the value as written.
func RowFromRecord(r domain.TransactionRecord, itemID string, loadedAt time.Time) (*TransactionRow, error) {
	date, err := civil.ParseDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("RowFromRecord: transaction %s: parse date: %w", r.TransactionID, err)
	}
	amount, ok := new(big.Rat).SetString(decimal.NewFromFloat(r.Amount).String())
	if !ok {
		return nil, fmt.Errorf("RowFromRecord: transaction %s: bad amount %v", r.TransactionID, r.Amount)
	}

	row := &TransactionRow{
		TransactionID:   r.TransactionID,
		ItemID:          itemID,
		AccountID:       r.AccountID,
		AccountName:     bigquery.NullString{StringVal: r.AccountName, Valid: r.AccountName != ""},
		TransactionDate: date,
		Amount:          amount,
		Name:            r.Name,
		Category:        r.Category,
		LoadedTS:        loadedAt.UTC(),
	}
	if r.MerchantName != nil {
		row.MerchantName = bigquery.NullString{StringVal: *r.MerchantName, Valid: true}
	}
	return row, nil
}

// Record converts a row back to the serialized record shape.
func (row *TransactionRow) Record() domain.TransactionRecord {
	r := domain.TransactionRecord{
		Date:          row.TransactionDate.String(),
		Name:          row.Name,
		AccountID:     row.AccountID,
		TransactionID: row.TransactionID,
		Category:      row.Category,
	}
	if row.Amount != nil {
		r.Amount, _ = row.Amount.Float64()
	}
	if row.AccountName.Valid {
		r.AccountName = row.AccountName.StringVal
	}
	if row.MerchantName.Valid {
		m := row.MerchantName.StringVal
		r.MerchantName = &m
	}
	if r.Category == nil {
		r.Category = []string{}
	}
	return r
}
