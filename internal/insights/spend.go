package insights

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/txfile"
)

// SignConvention says which sign marks money leaving the account.
type SignConvention int

const (
	// PositiveIsSpend matches Plaid: outflows are positive.
	PositiveIsSpend SignConvention = iota
	// NegativeIsSpend matches most bank CSV exports.
	NegativeIsSpend
)

// Item is the view of a transaction used for analysis.
type Item struct {
	Date        string  `json:"date"`
	Time        string  `json:"time,omitempty"`
	Merchant    string  `json:"merchant"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Amount      float64 `json:"amount"`
	Account     string  `json:"account,omitempty"`
}

// ItemsFromRecords converts fetched records. Provider categories are not
// carried over since they do not line up with the benchmark set.
func ItemsFromRecords(records []domain.TransactionRecord) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		merchant := r.Name
		if r.MerchantName != nil && *r.MerchantName != "" {
			merchant = *r.MerchantName
		}
		items = append(items, Item{
			Date:        r.Date,
			Merchant:    merchant,
			Description: r.Name,
			Amount:      r.Amount,
			Account:     r.AccountName,
		})
	}
	return items
}

// ItemsFromParsed converts records read back from a file or CSV import.
func ItemsFromParsed(records []txfile.ParsedRecord) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		item := Item{
			Date:        r.Date,
			Time:        r.Time,
			Merchant:    r.Merchant,
			Description: r.Description,
			Amount:      r.Amount,
		}
		if r.AccountName != nil {
			item.Account = *r.AccountName
		}
		items = append(items, item)
	}
	return items
}

// isSpend reports whether amount is an outflow and returns its magnitude.
func (s SignConvention) isSpend(amount float64) (float64, bool) {
	switch s {
	case NegativeIsSpend:
		if amount < 0 {
			return -amount, true
		}
	default:
		if amount > 0 {
			return amount, true
		}
	}
	return 0, false
}

// MonthCount is the number of distinct calendar months the dated items
// cover, and at least 1.
func MonthCount(items []Item) int {
	months := map[string]bool{}
	for _, it := range items {
		if len(it.Date) >= 7 {
			months[it.Date[:7]] = true
		}
	}
	if len(months) == 0 {
		return 1
	}
	return len(months)
}

// MonthlySpendByCategory returns the average monthly outflow per category
// over the calendar months the items cover. Income and refunds are ignored.
func MonthlySpendByCategory(items []Item, sign SignConvention) map[string]float64 {
	months := decimal.NewFromInt(int64(MonthCount(items)))
	totals := map[string]decimal.Decimal{}
	for _, it := range items {
		amount, ok := sign.isSpend(it.Amount)
		if !ok {
			continue
		}
		cat := Classify(it.Merchant, it.Description, it.Category)
		totals[cat] = totals[cat].Add(decimal.NewFromFloat(amount))
	}

	out := make(map[string]float64, len(totals))
	for cat, v := range totals {
		out[cat], _ = v.Div(months).Round(2).Float64()
	}
	return out
}
