package pipeline

import (
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// DefaultUserID is the Link user when none is given.
const DefaultUserID = "demo_user_123"

// TransactionsQuery selects which transactions GetTransactions returns.
// Zero Start/End fall back to DaysBack as in bank.DetermineDateRange.
type TransactionsQuery struct {
	DaysBack    int
	Start       time.Time
	End         time.Time
	ItemID      string
	AccessToken string
}

// TransactionsSummary is the sorted record list plus its summary.
type TransactionsSummary struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
	domain.Summary
}

// DownloadRequest drives OneClickDownload. At most one of PublicToken and
// AccessToken is used, PublicToken first.
type DownloadRequest struct {
	UserID      string
	DaysBack    int
	Format      string
	PublicToken string
	AccessToken string
	ItemID      string
}

// DownloadMetadata accompanies a rendered download.
type DownloadMetadata struct {
	UserID      string `json:"user_id"`
	Format      string `json:"format"`
	GeneratedAt string `json:"generated_at"`
	domain.Summary
}

// DownloadResult is a rendered download file.
type DownloadResult struct {
	Success     bool             `json:"success"`
	Filename    string           `json:"filename"`
	ContentType string           `json:"content_type"`
	Data        []byte           `json:"-"`
	Metadata    DownloadMetadata `json:"metadata"`
}

// FetchOptions drives FetchAndSave.
type FetchOptions struct {
	DaysBack  int
	Start     time.Time
	End       time.Time
	ItemID    string
	OutputDir string
}

// FetchAndSaveResult reports where the flat file went and what was in it.
type FetchAndSaveResult struct {
	FilePath   string            `json:"file_path"`
	ArchiveURI string            `json:"archive_uri,omitempty"`
	SinkCounts map[string]int    `json:"sink_counts,omitempty"`
	SinkErrors map[string]string `json:"sink_errors,omitempty"`
	domain.Summary
}
