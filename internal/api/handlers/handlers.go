// Package handlers implements the HTTP endpoints of the API server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/api/middleware"
	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/export"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

// BankService is the part of the bank data pipeline the handlers call.
type BankService interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken, itemID string) (bank.StoredToken, error)
	StoreAccessToken(ctx context.Context, accessToken, itemID string, source bank.TokenSource) (bank.StoredToken, error)
	GetTransactions(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error)
	OneClickDownload(ctx context.Context, req pipeline.DownloadRequest) (pipeline.DownloadResult, error)
}

var _ BankService = (*pipeline.BankDataPipeline)(nil)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr   *bank.ConfigurationError
		tokenErr *bank.AccessTokenError
		provErr  *bank.ProviderError
	)
	switch {
	case errors.Is(err, bank.ErrInvalidDateRange), errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &tokenErr):
		return http.StatusUnauthorized
	case errors.As(err, &provErr):
		return http.StatusBadGateway
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes it with the mapped status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg(msg)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(msg)
	}
	middleware.WriteError(w, status, err.Error())
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	return bank.ParseDate(raw)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
