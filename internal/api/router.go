// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/bank-data-pipeline/internal/api/handlers"
	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/config"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Plaid    *handlers.PlaidHandler
	Jobs     *handlers.JobsHandler
	Mortgage *handlers.MortgageHandler
	Insights *handlers.InsightsHandler
}

// NewRouter mounts every endpoint behind the shared middleware chain.
func NewRouter(cfg config.ServerConfig, h Handlers, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS(cfg.AllowedOrigin))

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)))

		r.Post("/link-token", h.Plaid.CreateLinkToken)
		r.Post("/exchange", h.Plaid.ExchangePublicToken)
		r.Post("/access-token", h.Plaid.StoreAccessToken)
		r.Get("/transactions", h.Plaid.ListTransactions)
		r.Get("/transactions/download", h.Plaid.Download)

		r.Post("/downloads", h.Jobs.CreateDownload)
		r.Get("/jobs", h.Jobs.ListJobs)
		r.Get("/jobs/{id}", h.Jobs.GetJob)
		r.Get("/jobs/{id}/download", h.Jobs.DownloadResult)

		r.Get("/mortgage-data", h.Mortgage.GetMortgageData)
		r.Post("/benchmarks", h.Insights.Benchmarks)
		r.Post("/finance-tip", h.Insights.FinanceTip)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
