package txfile

import (
	"context"
	"fmt"
	"os"
)

// Source yields parsed transactions without exposing where they are kept.
type Source interface {
	Load(ctx context.Context) ([]ParsedRecord, error)
}

// FileSource loads records from a flat transaction file.
type FileSource struct {
	Path string
}

var (
	_ Source = FileSource{}
	_ Source = CSVSource{}
)

func (s FileSource) Load(ctx context.Context) ([]ParsedRecord, error) {
	res := Parse(ctx, s.Path)
	if !res.Success {
		return nil, fmt.Errorf("FileSource.Load: %s: %s", s.Path, res.Error)
	}
	return res.Transactions, nil
}

// CSVSource loads records from a bank CSV export.
type CSVSource struct {
	Path string
}

func (s CSVSource) Load(ctx context.Context) ([]ParsedRecord, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("CSVSource.Load: %w", err)
	}
	defer f.Close()

	res := ParseCSV(ctx, f)
	if !res.Success {
		return nil, fmt.Errorf("CSVSource.Load: %s: %s", s.Path, res.Error)
	}
	return res.Transactions, nil
}
