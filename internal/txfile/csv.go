package txfile

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

var csvDateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"2006/1/2",
	"1-2-2006",
	"2-1-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

type csvColumns struct {
	date, name, amount, account, timeOfDay int
}

// ParseCSV reads a bank CSV export. Headers are matched case-insensitively:
// a column containing "date" is the date; "account" the account;
// "amount" or "total" the amount; "time" the time; and "name", "merchant",
// "description" or "vendor" the name. Amounts may carry "$", thousands
// separators, or accounting parentheses for negatives.
func ParseCSV(ctx context.Context, r io.Reader) Result {
	log := logger.FromContext(ctx)
	fail := func(msg string) Result {
		return Result{Success: false, Transactions: []ParsedRecord{}, Error: msg}
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fail("CSV file is empty or has no headers")
		}
		return fail("CSV parsing error: " + err.Error())
	}

	cols, ok := matchColumns(header)
	if !ok {
		return fail(`CSV must have "date" and "amount" columns`)
	}
	if cols.name < 0 {
		return fail("CSV must have a column for transaction name/merchant/description")
	}

	records := []ParsedRecord{}
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("row", row).Msg("Skipping unreadable CSV row")
			continue
		}

		dateStr := cell(fields, cols.date)
		amountStr := cell(fields, cols.amount)
		if dateStr == "" || amountStr == "" {
			continue
		}

		date, ok := parseFlexibleDate(dateStr)
		if !ok {
			log.Warn().Int("row", row).Str("date", dateStr).Msg("Could not parse date")
			continue
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			log.Warn().Int("row", row).Str("amount", amountStr).Msg("Could not parse amount")
			continue
		}

		name := cell(fields, cols.name)
		if name == "" {
			name = "Unknown"
		}
		var account *string
		if cols.account >= 0 {
			a := cell(fields, cols.account)
			account = &a
		}
		timeOfDay := PlaceholderTime
		if cols.timeOfDay >= 0 {
			timeOfDay = cell(fields, cols.timeOfDay)
		}

		records = append(records, ParsedRecord{
			ID:          len(records) + 1,
			Date:        date.Format("2006-01-02"),
			DateTime:    date,
			Name:        name,
			Merchant:    name,
			Description: name,
			Amount:      amount,
			AccountName: account,
			Time:        timeOfDay,
		})
	}

	if len(records) == 0 {
		return fail("No valid transactions found in CSV. Check date and amount formats.")
	}
	return Result{Success: true, Transactions: records, Count: len(records)}
}

// matchColumns assigns each header to at most one role, first match wins.
// The account test runs before the name test so "Account Name" is an account.
func matchColumns(header []string) (csvColumns, bool) {
	cols := csvColumns{date: -1, name: -1, amount: -1, account: -1, timeOfDay: -1}
	assigned := make(map[int]bool)

	for i, h := range header {
		col := strings.ToLower(strings.TrimSpace(h))
		if col == "" {
			continue
		}
		switch {
		case strings.Contains(col, "date"):
			if cols.date < 0 {
				cols.date = i
				assigned[i] = true
			}
		case strings.Contains(col, "account"):
			if cols.account < 0 {
				cols.account = i
				assigned[i] = true
			}
		case strings.Contains(col, "amount"), strings.Contains(col, "total"):
			if cols.amount < 0 {
				cols.amount = i
				assigned[i] = true
			}
		case strings.Contains(col, "time"):
			if cols.timeOfDay < 0 {
				cols.timeOfDay = i
				assigned[i] = true
			}
		case containsAnyTerm(col, "name", "merchant", "description", "vendor"):
			if cols.name < 0 {
				cols.name = i
				assigned[i] = true
			}
		}
	}

	if cols.date < 0 || cols.amount < 0 {
		return cols, false
	}
	if cols.name < 0 {
		for i, h := range header {
			if !assigned[i] && strings.TrimSpace(h) != "" {
				cols.name = i
				break
			}
		}
	}
	return cols, true
}

func containsAnyTerm(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func cell(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

func parseFlexibleDate(s string) (time.Time, bool) {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	return strconv.ParseFloat(s, 64)
}
