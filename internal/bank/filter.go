package bank

import (
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/config"
)

// AccountFilter narrows transactions by account. Each non-empty set adds a
// predicate; predicates are ANDed. The zero value keeps everything.
type AccountFilter struct {
	AccountIDs   []string
	NameKeywords []string
	Subtypes     []string
}

// NewAccountFilter trims the inputs and lowercases keywords and subtypes.
func NewAccountFilter(accountIDs, nameKeywords, subtypes []string) AccountFilter {
	return AccountFilter{
		AccountIDs:   normalize(accountIDs, false),
		NameKeywords: normalize(nameKeywords, true),
		Subtypes:     normalize(subtypes, true),
	}
}

// FilterFromConfig builds the filter from PLAID_ACCOUNT_* settings.
func FilterFromConfig(cfg config.PlaidConfig) AccountFilter {
	return NewAccountFilter(cfg.AccountIDs, cfg.AccountNameFilter, cfg.AccountSubtypes)
}

// IsEmpty reports whether the filter keeps every transaction.
func (f AccountFilter) IsEmpty() bool {
	return len(f.AccountIDs) == 0 && len(f.NameKeywords) == 0 && len(f.Subtypes) == 0
}

// Apply returns the transactions that pass every non-empty predicate. Name
// keywords match case-insensitively against the official account name,
// falling back to the account name.
func (f AccountFilter) Apply(txs []Transaction, accounts map[string]Account) []Transaction {
	if f.IsEmpty() {
		return txs
	}

	ids := toSet(f.AccountIDs)
	subtypes := toSet(f.Subtypes)

	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		acct, ok := accounts[tx.AccountID]
		var name, subtype string
		if ok {
			name = strings.ToLower(acct.DisplayName())
			subtype = strings.ToLower(acct.Subtype)
		}

		if len(ids) > 0 && !ids[tx.AccountID] {
			continue
		}
		if len(f.NameKeywords) > 0 && !containsAny(name, f.NameKeywords) {
			continue
		}
		if len(subtypes) > 0 && !subtypes[subtype] {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func containsAny(name string, keywords []string) bool {
	if name == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func normalize(values []string, lower bool) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
	}
	return out
}
