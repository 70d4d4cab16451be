// Package plaidclient implements bank.Provider over the Plaid Go SDK.
package plaidclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v29/plaid"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// pageSize is the number of transactions requested per page (Plaid maximum).
const pageSize = 500

// Client adapts the Plaid API to bank.Provider.
type Client struct {
	api *plaid.APIClient
	env bank.Environment
}

var _ bank.Provider = (*Client)(nil)

// Option customises the underlying SDK configuration.
type Option func(*plaid.Configuration)

// WithHTTPClient replaces the SDK's HTTP client, typically to set timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *plaid.Configuration) { c.HTTPClient = hc }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *plaid.Configuration) { c.UseEnvironment(plaid.Environment(url)) }
}

// New builds a client for the credentials' environment. No request is made.
func New(creds bank.Credentials, opts ...Option) *Client {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", creds.ClientID)
	cfg.AddDefaultHeader("PLAID-SECRET", creds.Secret)
	cfg.UseEnvironment(environment(creds.Environment))
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{api: plaid.NewAPIClient(cfg), env: creds.Environment}
}

func environment(env bank.Environment) plaid.Environment {
	if env == bank.EnvProduction {
		return plaid.Production
	}
	return plaid.Sandbox
}

// ExchangePublicToken trades a Link public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (bank.ExchangeResult, error) {
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return bank.ExchangeResult{}, toAPIError(err)
	}
	return bank.ExchangeResult{
		AccessToken: resp.GetAccessToken(),
		ItemID:      resp.GetItemId(),
	}, nil
}

// GetTransactions fetches one page starting at req.Offset.
func (c *Client) GetTransactions(ctx context.Context, req bank.TransactionsRequest) (bank.TransactionsPage, error) {
	options := plaid.TransactionsGetRequestOptions{
		Count:  plaid.PtrInt32(pageSize),
		Offset: plaid.PtrInt32(int32(req.Offset)),
	}
	if len(req.AccountIDs) > 0 {
		ids := append([]string(nil), req.AccountIDs...)
		options.AccountIds = &ids
	}

	getReq := plaid.NewTransactionsGetRequest(
		req.AccessToken,
		req.StartDate.Format(bank.DateLayout),
		req.EndDate.Format(bank.DateLayout),
	)
	getReq.SetOptions(options)

	resp, _, err := c.api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*getReq).Execute()
	if err != nil {
		return bank.TransactionsPage{}, toAPIError(err)
	}

	page := bank.TransactionsPage{TotalTransactions: int(resp.GetTotalTransactions())}
	for _, tx := range resp.GetTransactions() {
		page.Transactions = append(page.Transactions, toTransaction(tx))
	}
	for _, acct := range resp.GetAccounts() {
		page.Accounts = append(page.Accounts, toAccount(acct))
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("env", string(c.env)).
		Int("offset", req.Offset).
		Int("received", len(page.Transactions)).
		Msg("transactions_get")
	return page, nil
}

// CreateLinkToken starts a Link session for req.UserID.
func (c *Client) CreateLinkToken(ctx context.Context, req bank.LinkTokenRequest) (string, error) {
	countries := make([]plaid.CountryCode, 0, len(req.CountryCodes))
	for _, cc := range req.CountryCodes {
		countries = append(countries, plaid.CountryCode(cc))
	}
	products := make([]plaid.Products, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, plaid.Products(p))
	}

	user := plaid.LinkTokenCreateRequestUser{ClientUserId: req.UserID}
	linkReq := plaid.NewLinkTokenCreateRequest(req.ClientName, req.Language, countries, user)
	linkReq.SetProducts(products)

	resp, _, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*linkReq).Execute()
	if err != nil {
		return "", toAPIError(err)
	}
	token := resp.GetLinkToken()
	if token == "" {
		return "", fmt.Errorf("CreateLinkToken: Plaid did not return a link_token payload")
	}
	return token, nil
}

func toTransaction(tx plaid.Transaction) bank.Transaction {
	out := bank.Transaction{
		TransactionID: tx.GetTransactionId(),
		AccountID:     tx.GetAccountId(),
		Date:          tx.GetDate(),
		Name:          tx.GetName(),
		Amount:        float64(tx.GetAmount()),
		Category:      tx.GetCategory(),
	}
	if merchant, ok := tx.GetMerchantNameOk(); ok && merchant != nil {
		m := *merchant
		out.MerchantName = &m
	}
	return out
}

func toAccount(acct plaid.AccountBase) bank.Account {
	return bank.Account{
		AccountID:    acct.GetAccountId(),
		Name:         acct.GetName(),
		OfficialName: acct.GetOfficialName(),
		Mask:         acct.GetMask(),
		Subtype:      string(acct.GetSubtype()),
	}
}

// toAPIError extracts Plaid's error body when there is one.
func toAPIError(err error) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return &bank.APIError{Err: err}
	}
	message := plaidErr.GetErrorMessage()
	if message == "" {
		message = plaidErr.GetDisplayMessage()
	}
	return &bank.APIError{
		Code:      plaidErr.GetErrorCode(),
		Message:   message,
		RequestID: plaidErr.GetRequestId(),
		Err:       err,
	}
}
