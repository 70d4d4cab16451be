package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

// PlaidHandler handles link, token and transaction endpoints.
type PlaidHandler struct {
	svc BankService
}

// NewPlaidHandler creates a new Plaid handler.
func NewPlaidHandler(svc BankService) *PlaidHandler {
	return &PlaidHandler{svc: svc}
}

// CreateLinkToken handles POST /api/link-token
func (h *PlaidHandler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.svc.CreateLinkToken(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create link token")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"link_token": token,
	})
}

// ExchangePublicToken handles POST /api/exchange
func (h *PlaidHandler) ExchangePublicToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicToken string `json:"public_token"`
		ItemID      string `json:"item_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "public_token is required")
		return
	}

	stored, err := h.svc.ExchangePublicToken(r.Context(), req.PublicToken, req.ItemID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to exchange public token")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse(stored))
}

// StoreAccessToken handles POST /api/access-token
func (h *PlaidHandler) StoreAccessToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	stored, err := h.svc.StoreAccessToken(r.Context(), req.AccessToken, req.ItemID, bank.SourceManual)
	if err != nil {
		writeServiceError(w, r, err, "Failed to store access token")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tokenResponse(stored))
}

// tokenResponse never echoes the full access token.
func tokenResponse(st bank.StoredToken) map[string]interface{} {
	return map[string]interface{}{
		"success":      true,
		"item_id":      st.ItemID,
		"source":       st.Source,
		"stored_at":    st.StoredAt,
		"access_token": bank.MaskToken(st.AccessToken),
	}
}

// ListTransactions handles GET /api/transactions
func (h *PlaidHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid days")
		return
	}
	start, err := queryDate(r, "start_date")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
		return
	}

	summary, err := h.svc.GetTransactions(r.Context(), pipeline.TransactionsQuery{
		DaysBack: days,
		Start:    start,
		End:      end,
		ItemID:   r.URL.Query().Get("item_id"),
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to get transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Download handles GET /api/transactions/download
func (h *PlaidHandler) Download(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid days")
		return
	}
	q := r.URL.Query()

	res, err := h.svc.OneClickDownload(r.Context(), pipeline.DownloadRequest{
		UserID:   q.Get("user_id"),
		DaysBack: days,
		Format:   q.Get("format"),
		ItemID:   q.Get("item_id"),
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to build download")
		return
	}

	w.Header().Set("X-Total-Transactions", strconv.Itoa(res.Metadata.TotalTransactions))
	writeAttachment(w, res.Filename, res.ContentType, res.Data)
}

func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
