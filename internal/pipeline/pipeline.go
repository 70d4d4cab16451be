// Package pipeline ties token handling, fetching, formatting and the optional
// sinks into the operations the CLI and HTTP API expose.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/export"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// BankDataPipeline is the high-level Plaid workflow.
type BankDataPipeline struct {
	provider   bank.Provider
	clientName string
	lookback   int
	dataDir    string
	filter     bank.AccountFilter

	session   *bank.Session
	store     *bank.TokenStore
	exchanger *bank.Exchanger
	resolver  *bank.Resolver
	fetcher   *bank.Fetcher

	sinks []PipelineStep
	now   func() time.Time
}

// New builds a pipeline from configuration. The session is seeded with the
// configured access token and item id. Sink steps run after the flat file is
// written by FetchAndSave.
func New(cfg *config.Config, provider bank.Provider, sinks ...PipelineStep) *BankDataPipeline {
	storePath := cfg.Plaid.TokenStorePath
	if storePath == "" {
		storePath = filepath.Join(cfg.DataDir, config.DefaultTokenStoreFile)
	}

	session := bank.NewSession(cfg.Plaid.AccessToken, cfg.Plaid.ItemID)
	store := bank.NewTokenStore(storePath, session)
	exchanger := &bank.Exchanger{Provider: provider, Store: store}

	return &BankDataPipeline{
		provider:   provider,
		clientName: cfg.Plaid.ClientName,
		lookback:   cfg.Plaid.LookbackDays,
		dataDir:    cfg.DataDir,
		filter:     bank.FilterFromConfig(cfg.Plaid),
		session:    session,
		store:      store,
		exchanger:  exchanger,
		resolver: &bank.Resolver{
			Session:     session,
			TokenList:   cfg.Plaid.AccessTokens,
			PublicToken: cfg.Plaid.PublicToken,
			Store:       store,
			Exchanger:   exchanger,
		},
		fetcher: &bank.Fetcher{Provider: provider},
		sinks:   sinks,
		now:     time.Now,
	}
}

// TokenStorePath is where access tokens are persisted.
func (p *BankDataPipeline) TokenStorePath() string { return p.store.Path() }

// CreateLinkToken creates a Link token the frontend uses to launch Plaid Link.
func (p *BankDataPipeline) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}
	clientName := p.clientName
	if clientName == "" {
		clientName = config.DefaultClientName
	}

	token, err := p.provider.CreateLinkToken(ctx, bank.LinkTokenRequest{
		UserID:       userID,
		ClientName:   clientName,
		Products:     []string{"transactions"},
		CountryCodes: []string{"US"},
		Language:     "en",
	})
	if err != nil {
		return "", &bank.ProviderError{Op: "link_token_create", Detail: bank.DescribeProviderError(err), Err: err}
	}
	log := logger.FromContext(ctx)
	log.Info().Str("user_id", userID).Msg("Created Plaid link token")
	return token, nil
}

// StoreAccessToken persists and activates an access token.
func (p *BankDataPipeline) StoreAccessToken(ctx context.Context, accessToken, itemID string, source bank.TokenSource) (bank.StoredToken, error) {
	if source == "" {
		source = bank.SourceManual
	}
	return p.store.StoreAccessToken(ctx, accessToken, itemID, source)
}

// ExchangePublicToken exchanges a public token and stores the result. The
// provider's item id wins over itemID.
func (p *BankDataPipeline) ExchangePublicToken(ctx context.Context, publicToken, itemID string) (bank.StoredToken, error) {
	res, err := p.exchanger.Exchange(ctx, publicToken, false)
	if err != nil {
		return bank.StoredToken{}, err
	}
	if res.ItemID != "" {
		itemID = res.ItemID
	}
	stored, err := p.store.StoreAccessToken(ctx, res.AccessToken, itemID, bank.SourceExchange)
	if err != nil {
		return bank.StoredToken{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("item_id", stored.ItemID).Msg("Token exchange complete")
	return stored, nil
}

func (p *BankDataPipeline) dateRange(daysBack int, start, end time.Time) (bank.DateRange, error) {
	if daysBack <= 0 {
		daysBack = p.lookback
	}
	return bank.DetermineDateRange(daysBack, start, end, p.now())
}

func summarize(state *PipelineState) domain.Summary {
	return domain.Summary{
		ItemID:            state.Resolution.ItemID,
		AccessTokenSource: string(state.Resolution.Source),
		StartDate:         state.DateRange.StartString(),
		EndDate:           state.DateRange.EndString(),
		TotalTransactions: len(state.Records),
		TotalAmount:       domain.TotalAmount(state.Records),
	}
}

// GetTransactions resolves a token, fetches the range and returns sorted
// records with their summary.
func (p *BankDataPipeline) GetTransactions(ctx context.Context, q TransactionsQuery) (TransactionsSummary, error) {
	dr, err := p.dateRange(q.DaysBack, q.Start, q.End)
	if err != nil {
		return TransactionsSummary{}, fmt.Errorf("GetTransactions: %w", err)
	}

	state := &PipelineState{
		PreferredItemID: strings.TrimSpace(q.ItemID),
		AccessToken:     q.AccessToken,
		DateRange:       dr,
	}
	steps := NewPipeline(
		&ResolveTokenStep{Resolver: p.resolver, Store: p.store},
		&FetchTransactionsStep{Fetcher: p.fetcher, Filter: p.filter},
		&SerializeStep{},
	)
	if err := steps.Execute(ctx, state); err != nil {
		return TransactionsSummary{}, fmt.Errorf("GetTransactions: %w", err)
	}

	summary := summarize(state)
	log := logger.FromContext(ctx)
	log.Info().
		Int("count", summary.TotalTransactions).
		Str("start_date", summary.StartDate).
		Str("end_date", summary.EndDate).
		Str("item_id", summary.ItemID).
		Msg("Retrieved transactions")
	return TransactionsSummary{Transactions: state.Records, Summary: summary}, nil
}

// FormatForDownload renders records in the named format.
func (p *BankDataPipeline) FormatForDownload(records []domain.TransactionRecord, format string) ([]byte, export.Format, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, "", err
	}
	data, err := export.Render(records, f, p.now())
	if err != nil {
		return nil, "", fmt.Errorf("FormatForDownload: %w", err)
	}
	return data, f, nil
}

// OneClickDownload optionally exchanges or stores a token, then fetches and
// renders the lookback window.
func (p *BankDataPipeline) OneClickDownload(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return DownloadResult{}, err
	}

	itemHint := strings.TrimSpace(req.ItemID)
	switch {
	case strings.TrimSpace(req.PublicToken) != "":
		stored, err := p.ExchangePublicToken(ctx, req.PublicToken, itemHint)
		if err != nil {
			return DownloadResult{}, err
		}
		itemHint = stored.ItemID
	case strings.TrimSpace(req.AccessToken) != "":
		stored, err := p.StoreAccessToken(ctx, req.AccessToken, itemHint, bank.SourceManual)
		if err != nil {
			return DownloadResult{}, err
		}
		itemHint = stored.ItemID
	}

	summary, err := p.GetTransactions(ctx, TransactionsQuery{DaysBack: req.DaysBack, ItemID: itemHint})
	if err != nil {
		return DownloadResult{}, err
	}

	now := p.now()
	data, err := export.Render(summary.Transactions, format, now)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("OneClickDownload: %w", err)
	}

	return DownloadResult{
		Success:     true,
		Filename:    export.DownloadFilename(format, now),
		ContentType: format.ContentType(),
		Data:        data,
		Metadata: DownloadMetadata{
			UserID:      req.UserID,
			Format:      string(format),
			GeneratedAt: now.Format(time.RFC3339),
			Summary:     summary.Summary,
		},
	}, nil
}

// FetchAndSave resolves a token, fetches, writes the flat file and runs the
// configured sinks.
func (p *BankDataPipeline) FetchAndSave(ctx context.Context, opts FetchOptions) (FetchAndSaveResult, error) {
	dr, err := p.dateRange(opts.DaysBack, opts.Start, opts.End)
	if err != nil {
		return FetchAndSaveResult{}, fmt.Errorf("FetchAndSave: %w", err)
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = p.dataDir
	}

	state := &PipelineState{
		PreferredItemID: strings.TrimSpace(opts.ItemID),
		DateRange:       dr,
		OutputDir:       outputDir,
	}
	steps := append([]PipelineStep{
		&ResolveTokenStep{Resolver: p.resolver, Store: p.store},
		&FetchTransactionsStep{Fetcher: p.fetcher, Filter: p.filter},
		&SerializeStep{},
		&WriteFlatFileStep{},
	}, p.sinks...)

	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		return FetchAndSaveResult{}, fmt.Errorf("FetchAndSave: %w", err)
	}

	return FetchAndSaveResult{
		FilePath:   state.FilePath,
		ArchiveURI: state.ArchiveURI,
		SinkCounts: state.SinkCounts,
		SinkErrors: state.SinkErrors,
		Summary:    summarize(state),
	}, nil
}
