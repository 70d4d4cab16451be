package insights

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// MaxTipTransactions caps how many transactions go into a tip prompt.
const MaxTipTransactions = 200

// Tip is a single piece of advice.
type Tip struct {
	Title            string   `json:"title"`
	Advice           string   `json:"advice"`
	PotentialSavings string   `json:"potential_savings"`
	ActionableSteps  []string `json:"actionable_steps"`
}

type SpendingInsights struct {
	FrequentMerchants []string `json:"frequent_merchants"`
	SpendingTrend     string   `json:"spending_trend"`
}

type TipAnalysis struct {
	Tip              Tip              `json:"tip"`
	SpendingInsights SpendingInsights `json:"spending_insights"`
}

// TipResult is the envelope returned by FinanceTip.
type TipResult struct {
	Success  bool         `json:"success"`
	Analysis *TipAnalysis `json:"analysis"`
	Error    string       `json:"error,omitempty"`
}

// TipCSV renders items as the CSV block embedded in the tip prompt.
// Only the first MaxTipTransactions items are included.
func TipCSV(items []Item) (string, error) {
	if len(items) > MaxTipTransactions {
		items = items[:MaxTipTransactions]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"date", "time", "name", "description", "amount", "account"}); err != nil {
		return "", fmt.Errorf("TipCSV: header: %w", err)
	}
	for _, it := range items {
		account := it.Account
		if account == "" {
			account = "Unknown"
		}
		row := []string{it.Date, it.Time, it.Merchant, it.Description, strconv.FormatFloat(it.Amount, 'f', -1, 64), account}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("TipCSV: row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("TipCSV: flush: %w", err)
	}
	return buf.String(), nil
}

// FinanceTip asks g for one actionable tip grounded in items.
func FinanceTip(ctx context.Context, g llm.Generator, items []Item) TipResult {
	if g == nil {
		return TipResult{Error: "LLM not available"}
	}
	data, err := TipCSV(items)
	if err != nil {
		return TipResult{Error: err.Error()}
	}

	res := llm.GenerateJSON(ctx, g, tipPrompt(data))
	if !res.Success {
		return TipResult{Error: res.Error}
	}

	var analysis TipAnalysis
	if err := decodeInto(res.Data, &analysis); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Tip reply had an unexpected shape")
		return TipResult{Error: "Unexpected tip format from model"}
	}
	return TipResult{Success: true, Analysis: &analysis}
}

func tipPrompt(csvData string) string {
	return `You are a personal finance coach. Analyze these transactions and give ONE specific, actionable tip.
If the data spans more than one month, compare spending across months.

Transaction Data (CSV):
` + csvData + `
Return ONLY valid JSON in exactly this format:

{
  "tip": {
    "title": "Specific tip title based on the data",
    "advice": "Explanation citing specific transactions with dates and amounts, with a month-over-month comparison when available",
    "potential_savings": "$X-$Y/year",
    "actionable_steps": ["Step 1", "Step 2", "Step 3"]
  },
  "spending_insights": {
    "frequent_merchants": ["merchant1", "merchant2", "merchant3"],
    "spending_trend": "Brief trend observation"
  }
}

Rules:
1. Pick one clear pattern: repeated merchants, recurring charges, fees, large purchases, category spikes or month-to-month changes.
2. For multi-month data compute at least one month-over-month trend.
3. Cite merchants, dates (YYYY-MM-DD) and amounts.
4. Base savings projections on the identified issue.
5. Give 2-3 practical steps with timeframes.
6. Without a strong pattern, focus on the largest category or biggest monthly jump.
7. Use only the provided data.`
}
