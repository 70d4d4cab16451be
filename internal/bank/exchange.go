package bank

import (
	"context"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// Exchanger trades public tokens for access tokens.
type Exchanger struct {
	Provider Provider
	Store    *TokenStore
}

// Exchange performs a single provider call. With persist set, the resulting
// token is written to the store with source "exchange".
func (e *Exchanger) Exchange(ctx context.Context, publicToken string, persist bool) (ExchangeResult, error) {
	log := logger.FromContext(ctx)

	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return ExchangeResult{}, &AccessTokenError{Message: "Failed to exchange public token. No public token supplied."}
	}

	res, err := e.Provider.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return ExchangeResult{}, &AccessTokenError{
			Message: "Failed to exchange public token. " + DescribeProviderError(err),
			Err:     err,
		}
	}

	itemLabel := res.ItemID
	if itemLabel == "" {
		itemLabel = "<unknown>"
	}

	if persist {
		if e.Store == nil {
			return ExchangeResult{}, &ConfigurationError{Message: "Exchange: no token store configured"}
		}
		if _, err := e.Store.StoreAccessToken(ctx, res.AccessToken, res.ItemID, SourceExchange); err != nil {
			return ExchangeResult{}, err
		}
		log.Info().Str("item_id", itemLabel).Msg("Stored exchanged access token")
	} else {
		log.Info().Str("item_id", itemLabel).Msg("Exchanged public token")
	}
	return res, nil
}
