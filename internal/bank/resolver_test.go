package bank

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func seededStore(t *testing.T, items ...[2]string) *TokenStore {
	t.Helper()
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"), nil)
	doc := TokenStoreDocument{}
	for _, it := range items {
		doc.SetItem(it[0], it[1], ItemMetadata{Source: SourceManual, UpdatedAt: "2024-01-01T00:00:00Z"})
	}
	if err := store.Write(context.Background(), doc); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return store
}

func TestResolve_CurrentTokenBeatsStore(t *testing.T) {
	store := seededStore(t, [2]string{"item-store", "access-sandbox-store"})
	r := &Resolver{
		Session: NewSession("access-sandbox-current", "item-current"),
		Store:   store,
	}

	res, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.AccessToken != "access-sandbox-current" || res.ItemID != "item-current" {
		t.Errorf("Resolve() = %+v, want current token", res)
	}
	if res.Source != SourceCurrentToken {
		t.Errorf("Source = %q, want %q", res.Source, SourceCurrentToken)
	}
}

func TestResolve_PreferredItemFromStore(t *testing.T) {
	store := seededStore(t,
		[2]string{"item-a", "access-sandbox-aaa"},
		[2]string{"item-b", "access-sandbox-bbb"},
	)
	r := &Resolver{Store: store}

	res, err := r.Resolve(context.Background(), "item-b")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.AccessToken != "access-sandbox-bbb" || res.ItemID != "item-b" {
		t.Errorf("Resolve() = %+v, want second item", res)
	}
	if !res.PreferenceMatched {
		t.Error("Expected PreferenceMatched = true")
	}
	if res.Source != SourceTokenStore {
		t.Errorf("Source = %q, want token_store", res.Source)
	}
}

func TestResolve_PreferredItemOverridesPrecedence(t *testing.T) {
	store := seededStore(t, [2]string{"item-store", "access-sandbox-store"})
	r := &Resolver{
		Session: NewSession("access-sandbox-current", "item-current"),
		Store:   store,
	}

	res, err := r.Resolve(context.Background(), "item-store")
	if err != nil {
		t.Fatal(err)
	}
	if res.AccessToken != "access-sandbox-store" {
		t.Errorf("AccessToken = %q, want store token", res.AccessToken)
	}
}

func TestResolve_UnknownPreferenceFallsBack(t *testing.T) {
	store := seededStore(t, [2]string{"item-a", "access-sandbox-aaa"})
	r := &Resolver{
		TokenList: []string{"access-sandbox-listed"},
		Store:     store,
	}

	res, err := r.Resolve(context.Background(), "item-missing")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.AccessToken != "access-sandbox-listed" || res.Source != SourceTokenList {
		t.Errorf("Resolve() = %+v, want first candidate from token list", res)
	}
	if res.PreferenceMatched {
		t.Error("Expected PreferenceMatched = false")
	}
}

func TestResolve_SkipsMalformedTokens(t *testing.T) {
	store := seededStore(t,
		[2]string{"bad", "not-a-token"},
		[2]string{"good", "access-production-good"},
	)
	r := &Resolver{
		Session:   NewSession("garbage", ""),
		TokenList: []string{"", "public-sandbox-x", " "},
		Store:     store,
	}

	res, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.ItemID != "good" || res.AccessToken != "access-production-good" {
		t.Errorf("Resolve() = %+v, want the only valid store entry", res)
	}
}

func TestResolve_NothingAvailable(t *testing.T) {
	r := &Resolver{
		Session: NewSession("", ""),
		Store:   NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"), nil),
	}

	_, err := r.Resolve(context.Background(), "")
	var tokenErr *AccessTokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("Expected AccessTokenError, got %v", err)
	}
	if !strings.Contains(tokenErr.Error(), "Helpful steps") {
		t.Errorf("Expected remediation text, got %q", tokenErr.Error())
	}
}

func TestResolve_ExchangesPublicTokenOnlyWhenNoCandidates(t *testing.T) {
	ctx := context.Background()
	session := NewSession("", "")
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"), session)
	provider := &MockProvider{
		ExchangePublicTokenFunc: func(ctx context.Context, publicToken string) (ExchangeResult, error) {
			if publicToken != "public-sandbox-xyz" {
				t.Errorf("unexpected public token %q", publicToken)
			}
			return ExchangeResult{AccessToken: "access-sandbox-exchanged", ItemID: "item-new"}, nil
		},
	}
	r := &Resolver{
		Session:     session,
		PublicToken: "public-sandbox-xyz",
		Store:       store,
		Exchanger:   &Exchanger{Provider: provider, Store: store},
	}

	res, err := r.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != SourcePublicToken || res.AccessToken != "access-sandbox-exchanged" || res.ItemID != "item-new" {
		t.Errorf("Resolve() = %+v", res)
	}

	doc := store.Read(ctx)
	if doc.Items["item-new"] != "access-sandbox-exchanged" {
		t.Error("Expected exchanged token to be persisted")
	}
	if doc.ItemMetadata["item-new"].Source != SourceExchange {
		t.Errorf("metadata source = %q, want exchange", doc.ItemMetadata["item-new"].Source)
	}

	// The stored token is now a candidate, so a second resolve must not exchange again.
	res, err = r.Resolve(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if provider.ExchangeCalls != 1 {
		t.Errorf("ExchangeCalls = %d, want 1", provider.ExchangeCalls)
	}
	if res.Source != SourceCurrentToken {
		t.Errorf("second Source = %q, want session token", res.Source)
	}
}

func TestResolve_StoreAccessTokenActivatesSession(t *testing.T) {
	ctx := context.Background()
	session := NewSession("", "")
	store := seededStore(t, [2]string{"older", "access-sandbox-older"})
	store.session = session

	if _, err := store.StoreAccessToken(ctx, "access-sandbox-newer", "newer", SourceManual); err != nil {
		t.Fatal(err)
	}

	r := &Resolver{Session: session, Store: store}
	res, err := r.Resolve(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemID != "newer" {
		t.Errorf("ItemID = %q, want the just-stored item", res.ItemID)
	}
}
