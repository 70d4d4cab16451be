package bank

import (
	"context"
	"errors"
)

// MockProvider is a Provider whose behaviour is set per test.
type MockProvider struct {
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (ExchangeResult, error)
	GetTransactionsFunc     func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error)
	CreateLinkTokenFunc     func(ctx context.Context, req LinkTokenRequest) (string, error)

	ExchangeCalls int
	Requests      []TransactionsRequest
}

func (m *MockProvider) ExchangePublicToken(ctx context.Context, publicToken string) (ExchangeResult, error) {
	m.ExchangeCalls++
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return ExchangeResult{}, errors.New("ExchangePublicToken not mocked")
}

func (m *MockProvider) GetTransactions(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
	m.Requests = append(m.Requests, req)
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, req)
	}
	return TransactionsPage{}, errors.New("GetTransactions not mocked")
}

func (m *MockProvider) CreateLinkToken(ctx context.Context, req LinkTokenRequest) (string, error) {
	if m.CreateLinkTokenFunc != nil {
		return m.CreateLinkTokenFunc(ctx, req)
	}
	return "", errors.New("CreateLinkToken not mocked")
}
