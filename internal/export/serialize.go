// Package export turns provider transactions into records and writes them
// as the flat transaction file or a download payload.
package export

import (
	"sort"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// Serialize maps provider transactions to records. The account name is the
// official name, then the name, then the mask, then empty.
func Serialize(txs []bank.Transaction, accounts map[string]bank.Account) []domain.TransactionRecord {
	records := make([]domain.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		var accountName string
		if acct, ok := accounts[tx.AccountID]; ok {
			accountName = firstNonEmpty(acct.OfficialName, acct.Name, acct.Mask)
		}

		category := make([]string, len(tx.Category))
		copy(category, tx.Category)

		records = append(records, domain.TransactionRecord{
			Date:          tx.Date,
			Name:          tx.Name,
			MerchantName:  tx.MerchantName,
			Amount:        tx.Amount,
			AccountID:     tx.AccountID,
			AccountName:   accountName,
			Category:      category,
			TransactionID: tx.TransactionID,
		})
	}
	return records
}

// Sort orders records by (date, transaction_id) ascending, keeping the
// relative order of exact ties.
func Sort(records []domain.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].TransactionID < records[j].TransactionID
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
