package domain

import "github.com/shopspring/decimal"

// TransactionRecord is the serialized form of a provider transaction shared by
// the flat file, download formats and sinks. Amount keeps the provider's sign:
// positive values are money leaving the account.
type TransactionRecord struct {
	Date          string   `json:"date"` // YYYY-MM-DD
	Name          string   `json:"name"`
	MerchantName  *string  `json:"merchant_name"`
	Amount        float64  `json:"amount"`
	AccountID     string   `json:"account_id"`
	AccountName   string   `json:"account_name"`
	Category      []string `json:"category"`
	TransactionID string   `json:"transaction_id"`
}

// TotalAmount sums the amounts of records in decimal so the result carries
// no binary rounding residue.
func TotalAmount(records []TransactionRecord) float64 {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(decimal.NewFromFloat(r.Amount))
	}
	f, _ := total.Float64()
	return f
}

// Summary describes a completed fetch.
type Summary struct {
	ItemID            string  `json:"item_id"`
	AccessTokenSource string  `json:"access_token_source"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`
}
