package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/bank"
	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

var rule = strings.Repeat("=", 60)

// FlatFileName is transactions_<start>_to_<end>.txt.
func FlatFileName(dr bank.DateRange) string {
	return fmt.Sprintf("transactions_%s_to_%s.txt", dr.StartString(), dr.EndString())
}

// FormatFlatLine renders one record in the flat file grammar.
func FormatFlatLine(r domain.TransactionRecord) string {
	line := fmt.Sprintf("Date: %s, Name: %s, Amount: $%.2f", r.Date, r.Name, r.Amount)
	if r.AccountName != "" {
		line += ", Account: " + r.AccountName
	}
	return line
}

// nameRoundTrips reports whether name survives the flat file grammar, which
// cannot carry an empty name or one containing a comma.
func nameRoundTrips(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.Contains(name, ",")
}

// WriteFlatFile writes records to dir/FlatFileName(dr), creating dir and
// overwriting any previous file for the same range. It returns the path.
func WriteFlatFile(ctx context.Context, records []domain.TransactionRecord, dr bank.DateRange, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &bank.FileIOError{Op: "mkdir", Path: dir, Err: err}
	}
	path := filepath.Join(dir, FlatFileName(dr))

	f, err := os.Create(path)
	if err != nil {
		return "", &bank.FileIOError{Op: "create", Path: path, Err: err}
	}

	log := logger.FromContext(ctx)

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Found %d transactions from %s to %s:\n", len(records), dr.StartString(), dr.EndString())
	fmt.Fprintf(w, "%s\n\n", rule)
	for _, r := range records {
		if !nameRoundTrips(r.Name) {
			log.Warn().
				Str("transaction_id", r.TransactionID).
				Str("name", r.Name).
				Msg("Name cannot be parsed back from the transaction file")
		}
		fmt.Fprintln(w, FormatFlatLine(r))
	}
	fmt.Fprintf(w, "\n%s\nTotal transactions saved to: %s\n", rule, path)

	if err := w.Flush(); err != nil {
		f.Close()
		return "", &bank.FileIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &bank.FileIOError{Op: "close", Path: path, Err: err}
	}

	log.Info().
		Str("path", path).
		Int("count", len(records)).
		Msg("Wrote transaction file")
	return path, nil
}
