package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/insights"
	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

// analysisWindowDays is how far back transactions are fetched when a
// request carries none.
const analysisWindowDays = 30

// InsightsHandler serves spending benchmarks and finance tips.
type InsightsHandler struct {
	svc   BankService
	bench *insights.Benchmarker
	llms  *llm.Selector
}

// NewInsightsHandler creates a new insights handler. When llms has no
// default generator, benchmarks use the rule of thumb and tips without
// per-request LLM options report the LLM as unavailable.
func NewInsightsHandler(svc BankService, bench *insights.Benchmarker, llms *llm.Selector) *InsightsHandler {
	return &InsightsHandler{svc: svc, bench: bench, llms: llms}
}

type analysisRequest struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
	ItemID       string                     `json:"item_id"`
	State        string                     `json:"state"`
	Categories   []string                   `json:"categories"`
	// Sign is "positive" (default, provider data) or "negative" (bank exports).
	Sign string `json:"sign"`

	// model, openai_api_key and use_openai pick the LLM for a finance tip.
	llm.Options
}

// records returns the request's transactions, fetching the last
// analysisWindowDays when there are none.
func (h *InsightsHandler) records(w http.ResponseWriter, r *http.Request, req analysisRequest) ([]domain.TransactionRecord, bool) {
	if len(req.Transactions) > 0 {
		return req.Transactions, true
	}
	summary, err := h.svc.GetTransactions(r.Context(), pipeline.TransactionsQuery{
		DaysBack: analysisWindowDays,
		ItemID:   req.ItemID,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch transactions for analysis")
		return nil, false
	}
	return summary.Transactions, true
}

func signConvention(s string) (insights.SignConvention, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positive":
		return insights.PositiveIsSpend, true
	case "negative":
		return insights.NegativeIsSpend, true
	default:
		return 0, false
	}
}

// Benchmarks handles POST /api/benchmarks
func (h *InsightsHandler) Benchmarks(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sign, ok := signConvention(req.Sign)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "sign must be positive or negative")
		return
	}

	records, ok := h.records(w, r, req)
	if !ok {
		return
	}
	spend := insights.MonthlySpendByCategory(insights.ItemsFromRecords(records), sign)
	report := h.bench.Compare(r.Context(), spend, req.State, req.Categories)

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"user_spend": spend,
		"report":     report,
	})
}

// FinanceTip handles POST /api/finance-tip
func (h *InsightsHandler) FinanceTip(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	generator, err := h.llms.For(r.Context(), req.Options)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, ok := h.records(w, r, req)
	if !ok {
		return
	}

	res := insights.FinanceTip(r.Context(), generator, insights.ItemsFromRecords(records))
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
		if generator == nil {
			status = http.StatusServiceUnavailable
		}
	}
	middleware.WriteJSON(w, status, res)
}
