package bank

import (
	"context"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// Resolver picks one usable access token from, in order: the session's
// current token, the configured token list, and the token store. Only when
// all three are empty is the pending public token exchanged.
type Resolver struct {
	Session     *Session
	TokenList   []string
	PublicToken string
	Store       *TokenStore
	Exchanger   *Exchanger
}

// Resolution is the token chosen by Resolve.
type Resolution struct {
	AccessToken string
	ItemID      string
	Source      TokenSource
	// PreferenceMatched is true when a preferred item id was given and found.
	PreferenceMatched bool
}

type candidate struct {
	token  string
	itemID string
	source TokenSource
}

// Resolve returns the candidate whose item id equals preferredItemID when
// there is one. Otherwise it falls back to the first candidate in precedence
// order and logs that the preference was not honoured.
func (r *Resolver) Resolve(ctx context.Context, preferredItemID string) (Resolution, error) {
	log := logger.FromContext(ctx)
	preferredItemID = strings.TrimSpace(preferredItemID)

	candidates := r.candidates(ctx)

	if preferredItemID != "" {
		for _, c := range candidates {
			if c.itemID == preferredItemID {
				log.Debug().Str("item_id", c.itemID).Str("source", string(c.source)).Msg("Resolved preferred item")
				return Resolution{AccessToken: c.token, ItemID: c.itemID, Source: c.source, PreferenceMatched: true}, nil
			}
		}
	}

	if len(candidates) > 0 {
		c := candidates[0]
		if preferredItemID != "" {
			log.Warn().
				Str("preferred_item_id", preferredItemID).
				Str("item_id", c.itemID).
				Str("source", string(c.source)).
				Msg("Preferred item not found; using default token precedence")
		}
		return Resolution{AccessToken: c.token, ItemID: c.itemID, Source: c.source}, nil
	}

	publicToken := strings.TrimSpace(r.PublicToken)
	if publicToken == "" || r.Exchanger == nil {
		return Resolution{}, errNoAccessToken()
	}

	log.Info().Msg("No saved access token found. Attempting exchange using PLAID_PUBLIC_TOKEN.")
	res, err := r.Exchanger.Exchange(ctx, publicToken, true)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{AccessToken: res.AccessToken, ItemID: res.ItemID, Source: SourcePublicToken}, nil
}

func (r *Resolver) candidates(ctx context.Context) []candidate {
	log := logger.FromContext(ctx)
	var out []candidate

	currentToken, currentItem := r.Session.Current()
	currentToken = strings.TrimSpace(currentToken)
	if ValidAccessToken(currentToken) {
		out = append(out, candidate{token: currentToken, itemID: strings.TrimSpace(currentItem), source: SourceCurrentToken})
	} else if currentToken != "" {
		log.Warn().Msg("PLAID_ACCESS_TOKEN is set but not a valid Plaid access token format.")
	}

	for _, raw := range r.TokenList {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		if !ValidAccessToken(token) {
			log.Warn().Msg("Ignoring token that does not match Plaid format from PLAID_ACCESS_TOKENS.")
			continue
		}
		out = append(out, candidate{token: token, source: SourceTokenList})
	}

	if r.Store != nil {
		doc := r.Store.Read(ctx)
		for _, itemID := range doc.ItemIDs() {
			token := doc.Items[itemID]
			if !ValidAccessToken(token) {
				log.Warn().Str("item_id", itemID).Msg("Ignoring malformed token in token store")
				continue
			}
			out = append(out, candidate{token: strings.TrimSpace(token), itemID: itemID, source: SourceTokenStore})
		}
	}

	return out
}
