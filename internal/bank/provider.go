package bank

import (
	"context"
	"time"
)

// Provider is the banking API boundary.
type Provider interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (ExchangeResult, error)
	GetTransactions(ctx context.Context, req TransactionsRequest) (TransactionsPage, error)
	CreateLinkToken(ctx context.Context, req LinkTokenRequest) (string, error)
}

// ExchangeResult is the outcome of a public token exchange.
type ExchangeResult struct {
	AccessToken string
	ItemID      string
}

// TransactionsRequest asks for one page of transactions in [StartDate, EndDate].
type TransactionsRequest struct {
	AccessToken string
	StartDate   time.Time
	EndDate     time.Time
	AccountIDs  []string
	Offset      int
}

// TransactionsPage is one page of a transactions response.
type TransactionsPage struct {
	Transactions      []Transaction
	Accounts          []Account
	TotalTransactions int
}

// LinkTokenRequest carries the parameters for a Link session.
type LinkTokenRequest struct {
	UserID       string
	ClientName   string
	Products     []string
	CountryCodes []string
	Language     string
}

// Transaction is a provider transaction. Amount follows the provider's
// convention: positive values are money leaving the account.
type Transaction struct {
	TransactionID string
	AccountID     string
	Date          string
	Name          string
	MerchantName  *string
	Amount        float64
	Category      []string
}

// Account is a provider account. Empty strings mean the field was absent.
type Account struct {
	AccountID    string
	Name         string
	OfficialName string
	Mask         string
	Subtype      string
}

// DisplayName is the official name, falling back to the account name.
func (a Account) DisplayName() string {
	if a.OfficialName != "" {
		return a.OfficialName
	}
	return a.Name
}
