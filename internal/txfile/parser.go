// Package txfile reads transactions back from the flat transaction file and
// from bank CSV exports.
package txfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// PlaceholderTime stands in for the time of day, which the flat file does not carry.
const PlaceholderTime = "12:00:00"

var linePattern = regexp.MustCompile(`^Date: (\d{4}-\d{2}-\d{2}), Name: ([^,]+), Amount: \$(-?[\d.]+)(?:, Account: (.+))?$`)

// ParsedRecord is a transaction recovered from a file. Merchant and
// Description repeat Name for consumers that expect those fields.
type ParsedRecord struct {
	ID          int       `json:"id"`
	Date        string    `json:"date"`
	DateTime    time.Time `json:"datetime"`
	Name        string    `json:"name"`
	Merchant    string    `json:"merchant"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	AccountName *string   `json:"account_name"`
	Time        string    `json:"time"`
}

// Result is the outcome of parsing a file. Success is false only when the
// file itself could not be read.
type Result struct {
	Success      bool           `json:"success"`
	Transactions []ParsedRecord `json:"transactions"`
	Count        int            `json:"count"`
	Error        string         `json:"error,omitempty"`
}

// Parse reads the flat transaction file at path.
func Parse(ctx context.Context, path string) Result {
	f, err := os.Open(path)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("path", path).Msg("Unable to open transaction file")
		return Result{Success: false, Transactions: []ParsedRecord{}, Error: err.Error()}
	}
	defer f.Close()

	records, err := ParseReader(ctx, f)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("path", path).Msg("Unable to read transaction file")
		return Result{Success: false, Transactions: []ParsedRecord{}, Error: err.Error()}
	}
	return Result{Success: true, Transactions: records, Count: len(records)}
}

// ParseReader extracts records from flat-file content. Lines that do not
// match the grammar are skipped, with a warning when they start like a
// record line. Lines that match but carry an invalid date or amount are
// skipped with a warning.
func ParseReader(ctx context.Context, r io.Reader) ([]ParsedRecord, error) {
	log := logger.FromContext(ctx)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	records := []ParsedRecord{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			if strings.HasPrefix(line, "Date: ") {
				log.Warn().Int("line", lineNo).Str("text", line).Msg("Skipping record line that does not match the transaction format")
			}
			continue
		}

		date, err := time.Parse("2006-01-02", m[1])
		if err != nil {
			log.Warn().Int("line", lineNo).Str("date", m[1]).Msg("Skipping line with invalid date")
			continue
		}
		amount, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			log.Warn().Int("line", lineNo).Str("amount", m[3]).Msg("Skipping line with invalid amount")
			continue
		}

		name := strings.TrimSpace(m[2])
		var account *string
		if m[4] != "" {
			a := strings.TrimSpace(m[4])
			account = &a
		}

		records = append(records, ParsedRecord{
			ID:          len(records) + 1,
			Date:        m[1],
			DateTime:    date,
			Name:        name,
			Merchant:    name,
			Description: name,
			Amount:      amount,
			AccountName: account,
			Time:        PlaceholderTime,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ParseReader: line %d: %w", lineNo+1, err)
	}
	return records, nil
}
