package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/mortgage"
)

// RateSource returns the latest market mortgage rate.
type RateSource interface {
	Latest(ctx context.Context) (mortgage.Observation, error)
}

// MortgageHandler serves refinance advice.
type MortgageHandler struct {
	rates    RateSource
	yourRate float64
}

func NewMortgageHandler(rates RateSource, yourRate float64) *MortgageHandler {
	return &MortgageHandler{rates: rates, yourRate: yourRate}
}

// GetMortgageData handles GET /api/mortgage-data. A your_rate query
// parameter overrides the configured rate.
func (h *MortgageHandler) GetMortgageData(w http.ResponseWriter, r *http.Request) {
	yourRate := h.yourRate
	if raw := r.URL.Query().Get("your_rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid your_rate")
			return
		}
		yourRate = v
	}

	obs, err := h.rates.Latest(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to fetch mortgage rate")
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, mortgage.NewAdvice(yourRate, obs))
}
