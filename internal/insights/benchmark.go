package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// Report sources.
const (
	SourceRuleOfThumb = "rule_of_thumb"
	SourceLLM         = "llm"
)

const ruleOfThumbDisclaimer = "LLM unavailable. Using rough national heuristics; may be inaccurate."

// baselineMonthly holds rough national monthly averages in USD.
var baselineMonthly = map[string]float64{
	CarInsurance: 175,
	DiningOut:    280,
	Groceries:    500,
	Utilities:    210,
}

// Comparison is one category's user spend against an estimate.
type Comparison struct {
	Category                string   `json:"category"`
	UserMonthly             float64  `json:"user_monthly"`
	EstimatedAverageMonthly float64  `json:"estimated_average_monthly"`
	Difference              float64  `json:"difference"`
	PercentDiff             *float64 `json:"percent_diff"`
	Confidence              string   `json:"confidence,omitempty"`
	Region                  string   `json:"region,omitempty"`
	Insight                 string   `json:"insight,omitempty"`
}

// Report is a benchmark comparison for a region.
type Report struct {
	Region      string       `json:"region"`
	Comparisons []Comparison `json:"comparisons"`
	Highlights  []string     `json:"highlights"`
	Disclaimer  string       `json:"disclaimer"`
	Source      string       `json:"source"`
}

func normalizeRegion(state string) string {
	r := strings.ToUpper(strings.TrimSpace(state))
	if r == "" {
		return "US"
	}
	return r
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// CompareRuleOfThumb compares spend with fixed national baselines. With no
// categories given it covers the union of spend and baseline categories.
// Differences of at least 10% get an insight; the three largest become highlights.
func CompareRuleOfThumb(spend map[string]float64, state string, categories []string) Report {
	region := normalizeRegion(state)
	cats := comparisonCategories(spend, categories, true)

	comparisons := []Comparison{}
	for _, c := range cats {
		cat := NormalizeCategory(c)
		user := spend[cat]
		avg := baselineMonthly[cat]
		if avg <= 0 && user <= 0 {
			continue
		}
		diff := user - avg
		cmp := Comparison{
			Category:                cat,
			UserMonthly:             round(user, 2),
			EstimatedAverageMonthly: round(avg, 2),
			Difference:              round(diff, 2),
			Region:                  region,
		}
		if avg > 0 {
			pct := diff / avg * 100
			rounded := round(pct, 1)
			cmp.PercentDiff = &rounded
			if math.Abs(pct) >= 10 {
				polarity := "more"
				if pct < 0 {
					polarity = "less"
				}
				cmp.Insight = fmt.Sprintf("You are spending %.0f%% %s than a rough national average on %s.",
					math.Abs(pct), polarity, strings.ReplaceAll(cat, "_", " "))
			}
		}
		comparisons = append(comparisons, cmp)
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		return absPct(comparisons[i]) > absPct(comparisons[j])
	})

	highlights := []string{}
	for _, c := range comparisons {
		if c.Insight == "" {
			continue
		}
		highlights = append(highlights, c.Insight)
		if len(highlights) == 3 {
			break
		}
	}

	return Report{
		Region:      region,
		Comparisons: comparisons,
		Highlights:  highlights,
		Disclaimer:  ruleOfThumbDisclaimer,
		Source:      SourceRuleOfThumb,
	}
}

func absPct(c Comparison) float64 {
	if c.PercentDiff == nil {
		return 0
	}
	return math.Abs(*c.PercentDiff)
}

// comparisonCategories returns the requested categories, or the sorted spend
// keys (plus baseline keys when withBaseline is set).
func comparisonCategories(spend map[string]float64, requested []string, withBaseline bool) []string {
	if len(requested) > 0 {
		return requested
	}
	set := map[string]struct{}{}
	for c := range spend {
		set[c] = struct{}{}
	}
	if withBaseline {
		for c := range baselineMonthly {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Benchmarker asks an LLM for regional estimates and falls back to
// CompareRuleOfThumb when no generator is set or the reply is unusable.
type Benchmarker struct {
	Generator llm.Generator
	cache     *cache.Cache
}

// NewBenchmarker caches LLM reports for ttl.
func NewBenchmarker(g llm.Generator, ttl time.Duration) *Benchmarker {
	return &Benchmarker{Generator: g, cache: cache.New(ttl, 2*ttl)}
}

// Compare returns a benchmark report for spend in state.
func (b *Benchmarker) Compare(ctx context.Context, spend map[string]float64, state string, categories []string) Report {
	if b == nil || b.Generator == nil {
		return CompareRuleOfThumb(spend, state, categories)
	}
	log := logger.FromContext(ctx)
	region := normalizeRegion(state)
	cats := comparisonCategories(spend, categories, false)

	userSpend := make(map[string]float64, len(cats))
	for _, c := range cats {
		userSpend[c] = round(spend[c], 2)
	}
	spendJSON, err := json.Marshal(userSpend)
	if err != nil {
		return CompareRuleOfThumb(spend, state, categories)
	}

	key := region + "|" + string(spendJSON)
	if b.cache != nil {
		if cached, found := b.cache.Get(key); found {
			return cached.(Report)
		}
	}

	res := llm.GenerateJSON(ctx, b.Generator, benchmarkPrompt(region, string(spendJSON)))
	if !res.Success {
		log.Warn().Str("error", res.Error).Msg("Benchmark LLM failed, using rule of thumb")
		return CompareRuleOfThumb(spend, state, categories)
	}

	var report Report
	if err := decodeInto(res.Data, &report); err != nil {
		log.Warn().Err(err).Msg("Benchmark LLM reply had an unexpected shape, using rule of thumb")
		return CompareRuleOfThumb(spend, state, categories)
	}
	if report.Region == "" {
		report.Region = region
	}
	if report.Comparisons == nil {
		report.Comparisons = []Comparison{}
	}
	if report.Highlights == nil {
		report.Highlights = []string{}
	}
	report.Source = SourceLLM

	if b.cache != nil {
		b.cache.Set(key, report, cache.DefaultExpiration)
	}
	return report
}

// decodeInto re-encodes a generic JSON value into v.
func decodeInto(data interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decodeInto: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decodeInto: unmarshal: %w", err)
	}
	return nil
}

func benchmarkPrompt(region, spendJSON string) string {
	return `You are a personal finance analyst. Compare a user's monthly spending with typical household averages for the given US state, or national averages if the state is unknown.

State/Region: ` + region + `

User monthly spending by category (USD):
` + spendJSON + `

For each category estimate the average monthly spend in ` + region + `. When unsure give a conservative estimate with confidence "low".
Compute difference = user - average and percent_diff = (user - average) / average * 100.
Write a neutral, actionable one-sentence insight per category.
Add up to 3 short highlight messages for categories where abs(percent_diff) >= 10.
Include a short disclaimer that these are estimates, not advice.

Respond with JSON only, using this schema:
{
  "region": "` + region + `",
  "comparisons": [
    {
      "category": "<string>",
      "user_monthly": <number>,
      "estimated_average_monthly": <number>,
      "difference": <number>,
      "percent_diff": <number>,
      "confidence": "low"|"medium"|"high",
      "insight": "<short sentence>"
    }
  ],
  "highlights": ["<short message>"],
  "disclaimer": "<string>"
}`
}
