package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/export"
	"github.com/dvloznov/bank-data-pipeline/internal/gcsuploader"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/notionsync"
)

// PipelineStep represents a single step in a fetch pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	// Inputs.
	PreferredItemID string
	AccessToken     string
	DateRange       bank.DateRange
	OutputDir       string

	Resolution bank.Resolution
	Fetched    bank.FetchResult
	Records    []domain.TransactionRecord
	FilePath   string
	ArchiveURI string

	// SinkCounts is records written per sink; SinkErrors the sinks that failed.
	SinkCounts map[string]int
	SinkErrors map[string]string
}

func (s *PipelineState) sinkDone(name string, n int) {
	if s.SinkCounts == nil {
		s.SinkCounts = make(map[string]int)
	}
	s.SinkCounts[name] = n
}

func (s *PipelineState) sinkFailed(ctx context.Context, name string, err error) {
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("sink", name).Msg("Sink failed; continuing")
	if s.SinkErrors == nil {
		s.SinkErrors = make(map[string]string)
	}
	s.SinkErrors[name] = err.Error()
}

// ResolveTokenStep picks the access token. An explicit AccessToken in the
// state is stored as a manual token and used as is.
type ResolveTokenStep struct {
	Resolver *bank.Resolver
	Store    *bank.TokenStore
}

func (s *ResolveTokenStep) Execute(ctx context.Context, state *PipelineState) error {
	if token := strings.TrimSpace(state.AccessToken); token != "" {
		if s.Store == nil {
			return &bank.ConfigurationError{Message: "ResolveTokenStep: no token store configured"}
		}
		stored, err := s.Store.StoreAccessToken(ctx, token, state.PreferredItemID, bank.SourceManual)
		if err != nil {
			return err
		}
		state.Resolution = bank.Resolution{
			AccessToken: stored.AccessToken,
			ItemID:      stored.ItemID,
			Source:      stored.Source,
		}
		return nil
	}

	res, err := s.Resolver.Resolve(ctx, state.PreferredItemID)
	if err != nil {
		return err
	}
	state.Resolution = res
	return nil
}

// FetchTransactionsStep pages through the provider for the state's range.
type FetchTransactionsStep struct {
	Fetcher *bank.Fetcher
	Filter  bank.AccountFilter
}

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Fetcher.Fetch(ctx, state.Resolution.AccessToken, state.DateRange, s.Filter)
	if err != nil {
		return err
	}
	state.Fetched = res
	return nil
}

// SerializeStep turns fetched transactions into sorted records.
type SerializeStep struct{}

func (s *SerializeStep) Execute(ctx context.Context, state *PipelineState) error {
	records := export.Serialize(state.Fetched.Transactions, state.Fetched.Accounts)
	export.Sort(records)
	state.Records = records
	return nil
}

// WriteFlatFileStep writes the records to the range's flat file.
type WriteFlatFileStep struct{}

func (s *WriteFlatFileStep) Execute(ctx context.Context, state *PipelineState) error {
	path, err := export.WriteFlatFile(ctx, state.Records, state.DateRange, state.OutputDir)
	if err != nil {
		return err
	}
	state.FilePath = path
	return nil
}

// SaveRecordsStep copies records into a RecordSaver. Failures are recorded
// on the state and do not stop the pipeline.
type SaveRecordsStep struct {
	Name  string
	Saver RecordSaver
}

func (s *SaveRecordsStep) Execute(ctx context.Context, state *PipelineState) error {
	n, err := s.Saver.SaveRecords(ctx, state.Resolution.ItemID, state.Records)
	if err != nil {
		state.sinkFailed(ctx, s.Name, fmt.Errorf("SaveRecordsStep: %w", err))
		return nil
	}
	state.sinkDone(s.Name, n)
	return nil
}

// ArchiveFlatFileStep uploads the flat file to object storage.
type ArchiveFlatFileStep struct {
	Archiver gcsuploader.Archiver
	Now      func() time.Time
}

func (s *ArchiveFlatFileStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.FilePath == "" {
		return nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	object := gcsuploader.ExportObjectName(state.Resolution.ItemID, filepath.Base(state.FilePath), now())
	uri, err := s.Archiver.UploadFile(ctx, object, state.FilePath)
	if err != nil {
		state.sinkFailed(ctx, "gcs", fmt.Errorf("ArchiveFlatFileStep: %w", err))
		return nil
	}
	state.ArchiveURI = uri
	state.sinkDone("gcs", 1)
	return nil
}

// NotionSyncStep mirrors the records into a Notion database.
type NotionSyncStep struct {
	Service    notionsync.NotionService
	DatabaseID string
}

func (s *NotionSyncStep) Execute(ctx context.Context, state *PipelineState) error {
	stats, err := notionsync.SyncRecords(ctx, s.Service, s.DatabaseID, state.Resolution.ItemID, state.Records, notionsync.Options{})
	if err != nil {
		state.sinkFailed(ctx, "notion", fmt.Errorf("NotionSyncStep: %w", err))
		return nil
	}
	state.sinkDone("notion", stats.Created+stats.Updated)
	return nil
}

// Pipeline executes a series of steps.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
