package bank

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func makeTransactions(offset, n int, accountID string) []Transaction {
	txs := make([]Transaction, n)
	for i := range txs {
		txs[i] = Transaction{
			TransactionID: fmt.Sprintf("tx-%03d", offset+i),
			AccountID:     accountID,
			Date:          "2024-01-01",
			Name:          "Purchase",
			Amount:        1,
		}
	}
	return txs
}

func testRange() DateRange {
	return DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetch_PaginatesToTotal(t *testing.T) {
	pageSizes := []int{100, 100, 50}
	call := 0
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			n := pageSizes[call]
			call++
			return TransactionsPage{
				Transactions:      makeTransactions(req.Offset, n, "acc-1"),
				Accounts:          []Account{{AccountID: "acc-1", Name: "Checking"}},
				TotalTransactions: 250,
			}, nil
		},
	}

	res, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), AccountFilter{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Transactions) != 250 {
		t.Errorf("Expected 250 transactions, got %d", len(res.Transactions))
	}
	if len(provider.Requests) != 3 {
		t.Fatalf("Expected 3 provider calls, got %d", len(provider.Requests))
	}
	for i, wantOffset := range []int{0, 100, 200} {
		if provider.Requests[i].Offset != wantOffset {
			t.Errorf("request %d offset = %d, want %d", i, provider.Requests[i].Offset, wantOffset)
		}
	}
}

func TestFetch_StopsWhenNoProgress(t *testing.T) {
	call := 0
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			call++
			if call > 10 {
				t.Fatal("fetcher kept paginating without progress")
			}
			n := 0
			if req.Offset == 0 {
				n = 40
			}
			return TransactionsPage{Transactions: makeTransactions(req.Offset, n, "acc-1"), TotalTransactions: 100}, nil
		},
	}

	_, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), AccountFilter{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if call != 2 {
		t.Errorf("Expected 2 calls before failing, got %d", call)
	}
}

func TestFetch_ProviderError(t *testing.T) {
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			return TransactionsPage{}, &APIError{Code: "ITEM_LOGIN_REQUIRED", Message: "the login details have changed", RequestID: "abc"}
		},
	}

	_, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), AccountFilter{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.Detail != "ITEM_LOGIN_REQUIRED: the login details have changed: request_id=abc" {
		t.Errorf("Detail = %q", provErr.Detail)
	}
}

func TestFetch_MergesAccountsKeepingFirstSeen(t *testing.T) {
	call := 0
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			call++
			page := TransactionsPage{TotalTransactions: 2, Transactions: makeTransactions(req.Offset, 1, "acc-1")}
			if call == 1 {
				page.Accounts = []Account{{AccountID: "acc-1", Name: "First"}}
			} else {
				page.Accounts = []Account{{AccountID: "acc-1", Name: "Renamed"}, {AccountID: "acc-2", Name: "Second"}}
			}
			return page, nil
		},
	}

	res, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), AccountFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(res.Accounts))
	}
	if res.Accounts["acc-1"].Name != "First" {
		t.Errorf("acc-1 name = %q, want first-seen value", res.Accounts["acc-1"].Name)
	}
}

func TestFetch_AppliesFilter(t *testing.T) {
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			txs := append(makeTransactions(0, 2, "acc-check"), makeTransactions(2, 3, "acc-save")...)
			return TransactionsPage{
				Transactions: txs,
				Accounts: []Account{
					{AccountID: "acc-check", Name: "Total Checking"},
					{AccountID: "acc-save", Name: "Savings"},
				},
				TotalTransactions: 5,
			}, nil
		},
	}

	filter := NewAccountFilter([]string{"acc-check", "acc-save"}, []string{"Checking"}, nil)
	res, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), filter)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transactions) != 2 {
		t.Errorf("Expected 2 checking transactions, got %d", len(res.Transactions))
	}
	if got := provider.Requests[0].AccountIDs; len(got) != 2 {
		t.Errorf("Expected account ids forwarded server-side, got %v", got)
	}
}

func TestFetch_EmptyResult(t *testing.T) {
	provider := &MockProvider{
		GetTransactionsFunc: func(ctx context.Context, req TransactionsRequest) (TransactionsPage, error) {
			return TransactionsPage{TotalTransactions: 0}, nil
		},
	}
	res, err := (&Fetcher{Provider: provider}).Fetch(context.Background(), "access-sandbox-x", testRange(), AccountFilter{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Transactions) != 0 || len(provider.Requests) != 1 {
		t.Errorf("Expected a single call and no transactions, got %d calls", len(provider.Requests))
	}
}
