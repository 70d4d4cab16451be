package bank

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// Fetcher retrieves every transaction in a date range, one page at a time.
type Fetcher struct {
	Provider Provider
}

// FetchResult holds the accumulated transactions and the accounts seen
// across all pages, keyed by account id.
type FetchResult struct {
	Transactions []Transaction
	Accounts     map[string]Account
}

// Fetch pages through the provider with offset = transactions accumulated so
// far until the reported total is reached. Account ids narrow the request
// server-side; name keywords and subtypes are applied afterwards. A page that
// adds nothing while the total is still unmet fails the fetch.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string, dr DateRange, filter AccountFilter) (FetchResult, error) {
	log := logger.FromContext(ctx).With().
		Str("start_date", dr.StartString()).
		Str("end_date", dr.EndString()).
		Logger()

	req := TransactionsRequest{
		AccessToken: accessToken,
		StartDate:   dr.Start,
		EndDate:     dr.End,
		AccountIDs:  filter.AccountIDs,
	}

	var txs []Transaction
	accounts := make(map[string]Account)
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return FetchResult{}, &ProviderError{Op: "transactions_get", Detail: err.Error(), Err: err}
		}

		req.Offset = len(txs)
		page, err := f.Provider.GetTransactions(ctx, req)
		if err != nil {
			return FetchResult{}, &ProviderError{Op: "transactions_get", Detail: DescribeProviderError(err), Err: err}
		}
		pages++

		for _, acct := range page.Accounts {
			if _, seen := accounts[acct.AccountID]; !seen {
				accounts[acct.AccountID] = acct
			}
		}
		txs = append(txs, page.Transactions...)

		log.Debug().
			Int("page", pages).
			Int("offset", req.Offset).
			Int("received", len(page.Transactions)).
			Int("total", page.TotalTransactions).
			Msg("Fetched transactions page")

		if len(txs) >= page.TotalTransactions {
			break
		}
		if len(page.Transactions) == 0 {
			return FetchResult{}, &ProviderError{
				Op:     "transactions_get",
				Detail: fmt.Sprintf("pagination made no progress at offset %d of %d reported transactions", req.Offset, page.TotalTransactions),
			}
		}
	}

	filtered := filter.Apply(txs, accounts)
	log.Info().
		Int("fetched", len(txs)).
		Int("count", len(filtered)).
		Int("accounts", len(accounts)).
		Msg("Fetched transactions")

	return FetchResult{Transactions: filtered, Accounts: accounts}, nil
}
