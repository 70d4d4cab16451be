package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// Format is a download format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported download format")

// ParseFormat accepts a format name case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatTXT, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("ParseFormat: %q: %w", s, ErrUnsupportedFormat)
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatTXT:
		return "text/plain; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Render encodes records in format. generatedAt stamps the JSON metadata and
// the text report header.
func Render(records []domain.TransactionRecord, format Format, generatedAt time.Time) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return renderJSON(records, generatedAt)
	case FormatCSV:
		return renderCSV(records)
	case FormatTXT:
		return renderTXT(records, generatedAt), nil
	case FormatXLSX:
		return renderXLSX(records)
	default:
		return nil, fmt.Errorf("Render: %q: %w", format, ErrUnsupportedFormat)
	}
}

// DownloadFilename is bank_transactions_<yyyymmdd_HHMMSS>.<ext>.
func DownloadFilename(format Format, at time.Time) string {
	if format == "" {
		format = FormatJSON
	}
	return fmt.Sprintf("bank_transactions_%s.%s", at.Format("20060102_150405"), format)
}

type jsonMetadata struct {
	GeneratedAt       string  `json:"generated_at"`
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`
}

type jsonPayload struct {
	Metadata     jsonMetadata               `json:"metadata"`
	Transactions []domain.TransactionRecord `json:"transactions"`
}

func renderJSON(records []domain.TransactionRecord, generatedAt time.Time) ([]byte, error) {
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	payload := jsonPayload{
		Metadata: jsonMetadata{
			GeneratedAt:       generatedAt.Format(time.RFC3339),
			TotalTransactions: len(records),
			TotalAmount:       domain.TotalAmount(records),
		},
		Transactions: records,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("renderJSON: %w", err)
	}
	return data, nil
}

// csvColumns are the record's JSON keys in sorted order.
var csvColumns = []string{
	"account_id",
	"account_name",
	"amount",
	"category",
	"date",
	"merchant_name",
	"name",
	"transaction_id",
}

// csvRow orders values to match csvColumns. Categories are joined with "; "
// and a missing merchant name is an empty cell.
func csvRow(r domain.TransactionRecord) []string {
	merchant := ""
	if r.MerchantName != nil {
		merchant = *r.MerchantName
	}
	return []string{
		r.AccountID,
		r.AccountName,
		strconv.FormatFloat(r.Amount, 'f', -1, 64),
		strings.Join(r.Category, "; "),
		r.Date,
		merchant,
		r.Name,
		r.TransactionID,
	}
}

func renderCSV(records []domain.TransactionRecord) ([]byte, error) {
	var buf bytes.Buffer
	if len(records) == 0 {
		return buf.Bytes(), nil
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("renderCSV: header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(csvRow(r)); err != nil {
			return nil, fmt.Errorf("renderCSV: row %s: %w", r.TransactionID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("renderCSV: flush: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTXT(records []domain.TransactionRecord, generatedAt time.Time) []byte {
	wide := strings.Repeat("=", 80)
	lines := []string{
		"Bank Transactions Report - Generated " + generatedAt.Format("2006-01-02 15:04:05"),
		wide,
		"",
	}
	total := decimal.Zero
	for i, r := range records {
		total = total.Add(decimal.NewFromFloat(r.Amount))
		lines = append(lines, fmt.Sprintf("%3d. %s | %-30s | $%8.2f", i+1, r.Date, r.Name, r.Amount))
		if r.AccountName != "" {
			lines = append(lines, "     Account: "+r.AccountName)
		}
		if len(r.Category) > 0 {
			lines = append(lines, "     Category: "+strings.Join(r.Category, ", "))
		}
		lines = append(lines, "")
	}
	lines = append(lines,
		wide,
		fmt.Sprintf("Total transactions: %d", len(records)),
		"Total amount: $"+total.StringFixed(2),
	)
	return []byte(strings.Join(lines, "\n"))
}

const xlsxSheet = "Transactions"

func renderXLSX(records []domain.TransactionRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return nil, fmt.Errorf("renderXLSX: naming sheet: %w", err)
	}

	header := []interface{}{"Date", "Name", "Merchant", "Amount", "Account", "Category", "Transaction ID"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("renderXLSX: header: %w", err)
	}

	for i, r := range records {
		merchant := ""
		if r.MerchantName != nil {
			merchant = *r.MerchantName
		}
		row := []interface{}{r.Date, r.Name, merchant, r.Amount, r.AccountName, strings.Join(r.Category, "; "), r.TransactionID}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("renderXLSX: cell name: %w", err)
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("renderXLSX: row %d: %w", i+2, err)
		}
	}

	if len(records) > 0 {
		totalRow := []interface{}{"Total", "", "", domain.TotalAmount(records)}
		cell, _ := excelize.CoordinatesToCellName(1, len(records)+3)
		if err := f.SetSheetRow(xlsxSheet, cell, &totalRow); err != nil {
			return nil, fmt.Errorf("renderXLSX: total row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("renderXLSX: writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
