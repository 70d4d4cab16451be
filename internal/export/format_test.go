package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

var generatedAt = time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)

func sampleRecords() []domain.TransactionRecord {
	return []domain.TransactionRecord{
		{
			Date: "2024-04-01", Name: "Coffee", MerchantName: strPtr("Blue Bottle"), Amount: 4.5,
			AccountID: "acc-1", AccountName: "Checking", Category: []string{"Food and Drink", "Coffee"}, TransactionID: "t1",
		},
		{
			Date: "2024-04-02", Name: "Refund", Amount: -20, AccountID: "acc-1", Category: []string{}, TransactionID: "t2",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{" csv ", FormatCSV, false},
		{"txt", FormatTXT, false},
		{"xlsx", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ParseFormat(%q) error = %v, want ErrUnsupportedFormat", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRender_JSON(t *testing.T) {
	data, err := Render(sampleRecords(), FormatJSON, generatedAt)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var payload struct {
		Metadata struct {
			GeneratedAt       string  `json:"generated_at"`
			TotalTransactions int     `json:"total_transactions"`
			TotalAmount       float64 `json:"total_amount"`
		} `json:"metadata"`
		Transactions []map[string]interface{} `json:"transactions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Metadata.TotalTransactions != 2 || payload.Metadata.TotalAmount != -15.5 {
		t.Errorf("metadata = %+v", payload.Metadata)
	}
	if payload.Metadata.GeneratedAt != "2024-04-05T06:07:08Z" {
		t.Errorf("generated_at = %q", payload.Metadata.GeneratedAt)
	}
	if payload.Transactions[1]["merchant_name"] != nil {
		t.Errorf("Expected null merchant_name, got %v", payload.Transactions[1]["merchant_name"])
	}
}

func TestRender_JSONEmpty(t *testing.T) {
	data, err := Render(nil, FormatJSON, generatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"transactions": []`) {
		t.Errorf("Expected empty array, got %s", data)
	}
}

func TestRender_CSV(t *testing.T) {
	data, err := Render(sampleRecords(), FormatCSV, generatedAt)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	wantHeader := "account_id,account_name,amount,category,date,merchant_name,name,transaction_id"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Errorf("header = %s", got)
	}
	if rows[1][2] != "4.5" || rows[1][3] != "Food and Drink; Coffee" || rows[1][5] != "Blue Bottle" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][2] != "-20" || rows[2][5] != "" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestRender_CSVEmpty(t *testing.T) {
	data, err := Render(nil, FormatCSV, generatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty output, got %q", data)
	}
}

func TestRender_TXT(t *testing.T) {
	data, err := Render(sampleRecords(), FormatTXT, generatedAt)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != "Bank Transactions Report - Generated 2024-04-05 06:07:08" {
		t.Errorf("header = %q", lines[0])
	}
	wantFirst := "  1. 2024-04-01 | Coffee                         | $    4.50"
	if lines[3] != wantFirst {
		t.Errorf("first entry = %q, want %q", lines[3], wantFirst)
	}
	if lines[4] != "     Account: Checking" || lines[5] != "     Category: Food and Drink, Coffee" {
		t.Errorf("detail lines = %q / %q", lines[4], lines[5])
	}
	if last := lines[len(lines)-1]; last != "Total amount: $-15.50" {
		t.Errorf("last line = %q", last)
	}
	if lines[len(lines)-2] != "Total transactions: 2" {
		t.Errorf("count line = %q", lines[len(lines)-2])
	}
}

func TestRender_XLSX(t *testing.T) {
	data, err := Render(sampleRecords(), FormatXLSX, generatedAt)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) < 3 {
		t.Fatalf("Expected at least 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Date" || rows[1][1] != "Coffee" || rows[2][6] != "t2" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestRender_Unsupported(t *testing.T) {
	if _, err := Render(sampleRecords(), Format("pdf"), generatedAt); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDownloadFilename(t *testing.T) {
	if got := DownloadFilename(FormatCSV, generatedAt); got != "bank_transactions_20240405_060708.csv" {
		t.Errorf("DownloadFilename() = %q", got)
	}
	if got := DownloadFilename("", generatedAt); got != "bank_transactions_20240405_060708.json" {
		t.Errorf("DownloadFilename(\"\") = %q", got)
	}
}
