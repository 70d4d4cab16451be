package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-data-pipeline/internal/api/handlers"
	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/jobs"
	"github.com/dvloznov/bank-data-pipeline/internal/jobs/inmemory"
	"github.com/dvloznov/bank-data-pipeline/internal/llm"
	"github.com/dvloznov/bank-data-pipeline/internal/mortgage"
	"github.com/dvloznov/bank-data-pipeline/internal/pipeline"
)

// MockBankService is a handlers.BankService whose behaviour is set per test.
type MockBankService struct {
	CreateLinkTokenFunc     func(ctx context.Context, userID string) (string, error)
	ExchangePublicTokenFunc func(ctx context.Context, publicToken, itemID string) (bank.StoredToken, error)
	StoreAccessTokenFunc    func(ctx context.Context, accessToken, itemID string, source bank.TokenSource) (bank.StoredToken, error)
	GetTransactionsFunc     func(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error)
	OneClickDownloadFunc    func(ctx context.Context, req pipeline.DownloadRequest) (pipeline.DownloadResult, error)
}

func (m *MockBankService) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	return m.CreateLinkTokenFunc(ctx, userID)
}

func (m *MockBankService) ExchangePublicToken(ctx context.Context, publicToken, itemID string) (bank.StoredToken, error) {
	return m.ExchangePublicTokenFunc(ctx, publicToken, itemID)
}

func (m *MockBankService) StoreAccessToken(ctx context.Context, accessToken, itemID string, source bank.TokenSource) (bank.StoredToken, error) {
	return m.StoreAccessTokenFunc(ctx, accessToken, itemID, source)
}

func (m *MockBankService) GetTransactions(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error) {
	return m.GetTransactionsFunc(ctx, q)
}

func (m *MockBankService) OneClickDownload(ctx context.Context, req pipeline.DownloadRequest) (pipeline.DownloadResult, error) {
	return m.OneClickDownloadFunc(ctx, req)
}

type fixedRate struct {
	obs mortgage.Observation
	err error
}

func (f fixedRate) Latest(ctx context.Context) (mortgage.Observation, error) { return f.obs, f.err }

var sampleRecords = []domain.TransactionRecord{
	{TransactionID: "t1", Date: "2024-03-01", Name: "Whole Foods", Amount: 120},
	{TransactionID: "t2", Date: "2024-03-02", Name: "Chipotle", Amount: 30},
}

func sampleDownload(ctx context.Context, req pipeline.DownloadRequest) (pipeline.DownloadResult, error) {
	return pipeline.DownloadResult{
		Success:     true,
		Filename:    "bank_transactions_20240315_100000.csv",
		ContentType: "text/csv",
		Data:        []byte("date,name\n2024-03-01,Whole Foods\n"),
		Metadata:    pipeline.DownloadMetadata{UserID: req.UserID, Summary: domain.Summary{TotalTransactions: 2}},
	}, nil
}

type testServer struct {
	handler http.Handler
	store   *inmemory.Store
	queue   *inmemory.Queue
}

func newTestServer(t *testing.T, svc *MockBankService, rates handlers.RateSource) *testServer {
	t.Helper()
	return newTestServerWithLLM(t, svc, rates, nil)
}

func newTestServerWithLLM(t *testing.T, svc *MockBankService, rates handlers.RateSource, llms *llm.Selector) *testServer {
	t.Helper()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(4, 1, store)
	ctx, cancel := context.WithCancel(context.Background())
	if err := queue.Start(ctx, handlers.DownloadJobHandler(svc, nil)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})

	cfg := config.ServerConfig{AllowedOrigin: "*", RateLimitRPS: 1000, RateLimitBurst: 1000}
	h := Handlers{
		Plaid:    handlers.NewPlaidHandler(svc),
		Jobs:     handlers.NewJobsHandler(store, queue),
		Mortgage: handlers.NewMortgageHandler(rates, 6.575),
		Insights: handlers.NewInsightsHandler(svc, nil, llms),
	}
	return &testServer{handler: NewRouter(cfg, h, zerolog.Nop()), store: store, queue: queue}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &MockBankService{}, fixedRate{})
	rec := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "healthy" {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestLinkTokenAndExchange(t *testing.T) {
	svc := &MockBankService{
		CreateLinkTokenFunc: func(ctx context.Context, userID string) (string, error) {
			if userID != "u1" {
				t.Errorf("userID = %q", userID)
			}
			return "link-sandbox-1", nil
		},
		ExchangePublicTokenFunc: func(ctx context.Context, publicToken, itemID string) (bank.StoredToken, error) {
			if publicToken == "bad" {
				return bank.StoredToken{}, &bank.AccessTokenError{Message: "Failed to exchange public token. INVALID_PUBLIC_TOKEN"}
			}
			return bank.StoredToken{AccessToken: "access-sandbox-abcdef123456", ItemID: "item-1", Source: bank.SourceExchange}, nil
		},
	}
	s := newTestServer(t, svc, fixedRate{})

	rec := s.do(t, http.MethodPost, "/api/link-token", `{"user_id":"u1"}`)
	if rec.Code != http.StatusOK || decode(t, rec)["link_token"] != "link-sandbox-1" {
		t.Errorf("link-token = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/exchange", `{"public_token":"public-sandbox-1"}`)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["item_id"] != "item-1" {
		t.Errorf("exchange = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "abcdef123456") {
		t.Error("response must not echo the full access token")
	}

	if rec = s.do(t, http.MethodPost, "/api/exchange", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing public_token = %d", rec.Code)
	}
	if rec = s.do(t, http.MethodPost, "/api/exchange", `{"public_token":"bad"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad public_token = %d", rec.Code)
	}
	if rec = s.do(t, http.MethodPost, "/api/exchange", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d", rec.Code)
	}
}

func TestListTransactions(t *testing.T) {
	var got pipeline.TransactionsQuery
	svc := &MockBankService{GetTransactionsFunc: func(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error) {
		got = q
		if q.Start.After(q.End) && !q.End.IsZero() {
			return pipeline.TransactionsSummary{}, bank.ErrInvalidDateRange
		}
		return pipeline.TransactionsSummary{
			Transactions: sampleRecords,
			Summary:      domain.Summary{ItemID: "item-1", TotalTransactions: 2, TotalAmount: 150},
		}, nil
	}}
	s := newTestServer(t, svc, fixedRate{})

	rec := s.do(t, http.MethodGet, "/api/transactions?days=7&item_id=item-1&start_date=2024-03-01", "")
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["total_transactions"].(float64) != 2 {
		t.Errorf("transactions = %d %s", rec.Code, rec.Body.String())
	}
	if got.DaysBack != 7 || got.ItemID != "item-1" || got.Start.Day() != 1 {
		t.Errorf("query = %+v", got)
	}
	if txs, ok := body["transactions"].([]interface{}); !ok || len(txs) != 2 {
		t.Errorf("transactions field = %v", body["transactions"])
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/transactions?start_date=03/01/2024", http.StatusBadRequest},
		{"/api/transactions?days=abc", http.StatusBadRequest},
		{"/api/transactions?start_date=2024-03-10&end_date=2024-03-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := s.do(t, http.MethodGet, tt.target, ""); rec.Code != tt.want {
			t.Errorf("%s = %d, want %d", tt.target, rec.Code, tt.want)
		}
	}

	svc.GetTransactionsFunc = func(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error) {
		return pipeline.TransactionsSummary{}, &bank.ProviderError{Op: "transactions_get", Detail: "ITEM_LOGIN_REQUIRED"}
	}
	if rec := s.do(t, http.MethodGet, "/api/transactions", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure = %d", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	s := newTestServer(t, &MockBankService{OneClickDownloadFunc: sampleDownload}, fixedRate{})

	rec := s.do(t, http.MethodGet, "/api/transactions/download?format=csv&user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/csv" ||
		!strings.Contains(rec.Header().Get("Content-Disposition"), "bank_transactions_20240315_100000.csv") {
		t.Errorf("headers = %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Body.String(), "date,name") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDownloadJobLifecycle(t *testing.T) {
	s := newTestServer(t, &MockBankService{OneClickDownloadFunc: sampleDownload}, fixedRate{})

	if rec := s.do(t, http.MethodPost, "/api/downloads", `{"format":"pdf"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/downloads", `{"user_id":"u1","format":"csv","access_token":"access-sandbox-xyz"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	jobID, _ := decode(t, rec)["job_id"].(string)
	if jobID == "" {
		t.Fatal("missing job_id")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		job, err := s.store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %+v %v", job, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = s.do(t, http.MethodGet, "/api/jobs/"+jobID, "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "access-sandbox-xyz") {
		t.Errorf("get job = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/jobs/"+jobID+"/download", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "date,name") {
		t.Errorf("job download = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/jobs?user_id=u1", "")
	if rec.Code != http.StatusOK || decode(t, rec)["count"].(float64) != 1 {
		t.Errorf("list jobs = %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodGet, "/api/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d", rec.Code)
	}
}

func TestMortgageData(t *testing.T) {
	s := newTestServer(t, &MockBankService{}, fixedRate{obs: mortgage.Observation{Date: "2024-03-14", Rate: 5.2}})

	rec := s.do(t, http.MethodGet, "/api/mortgage-data", "")
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["should_refinance"] != true || body["refinance_message"] != "Consider refinancing" {
		t.Errorf("mortgage = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/mortgage-data?your_rate=5.5", "")
	if decode(t, rec)["should_refinance"] != false {
		t.Errorf("override = %s", rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/mortgage-data?your_rate=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad your_rate = %d", rec.Code)
	}

	failing := newTestServer(t, &MockBankService{}, fixedRate{err: errors.New("FRED unavailable")})
	if rec := failing.do(t, http.MethodGet, "/api/mortgage-data", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("fred failure = %d", rec.Code)
	}
}

func TestBenchmarksAndTip(t *testing.T) {
	fetched := false
	svc := &MockBankService{GetTransactionsFunc: func(ctx context.Context, q pipeline.TransactionsQuery) (pipeline.TransactionsSummary, error) {
		fetched = true
		return pipeline.TransactionsSummary{Transactions: sampleRecords}, nil
	}}
	s := newTestServer(t, svc, fixedRate{})

	rec := s.do(t, http.MethodPost, "/api/benchmarks", `{"state":"CA"}`)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || !fetched {
		t.Fatalf("benchmarks = %d %s", rec.Code, rec.Body.String())
	}
	spend := body["user_spend"].(map[string]interface{})
	if spend["groceries"].(float64) != 120 || spend["dining_out"].(float64) != 30 {
		t.Errorf("user_spend = %v", spend)
	}
	report := body["report"].(map[string]interface{})
	if report["source"] == "" {
		t.Errorf("report = %v", report)
	}

	if rec := s.do(t, http.MethodPost, "/api/benchmarks", `{"sign":"sideways"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad sign = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/finance-tip", `{"transactions":[{"date":"2024-03-01","name":"Coffee","amount":4}]}`)
	if rec.Code != http.StatusServiceUnavailable || decode(t, rec)["error"] != "LLM not available" {
		t.Errorf("tip without LLM = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFinanceTip_RequestSelectsLLM(t *testing.T) {
	var gotAuth, gotModel string
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"tip\":{\"title\":\"Brew at home\"}}"}}]}`))
	}))
	defer llmSrv.Close()

	llms := llm.NewSelector(config.LLMConfig{OpenAIBaseURL: llmSrv.URL + "/v1", OpenAIModel: "gpt-4o-mini"}, nil)
	s := newTestServerWithLLM(t, &MockBankService{}, fixedRate{}, llms)

	rec := s.do(t, http.MethodPost, "/api/finance-tip",
		`{"transactions":[{"date":"2024-03-01","name":"Coffee","amount":4}],"use_openai":true,"openai_api_key":"sk-request","model":"gpt-request"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tip = %d %s", rec.Code, rec.Body.String())
	}
	if gotAuth != "Bearer sk-request" || gotModel != "gpt-request" {
		t.Errorf("backend saw auth %q model %q", gotAuth, gotModel)
	}
	if !strings.Contains(rec.Body.String(), "Brew at home") {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/finance-tip", `{"use_openai":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("use_openai without key = %d %s", rec.Code, rec.Body.String())
	}
}
