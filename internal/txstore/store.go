// Package txstore keeps fetched transactions in a local SQLite database.
package txstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
	"github.com/dvloznov/bank-data-pipeline/internal/txfile"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed transaction record store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ txfile.Source = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: sql open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	if err := migrateUp(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// migrateUp applies the embedded schema migrations. The migrate instance is
// not closed since its database driver would close db with it.
func migrateUp(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}

	log := logger.FromContext(ctx)
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug().Msg("Record store schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Info().Uint("version", version).Msg("Applied record store migrations")
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecords upserts records by transaction id and returns how many were written.
func (s *Store) SaveRecords(ctx context.Context, itemID string, records []domain.TransactionRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("SaveRecords: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (transaction_id, item_id, date, name, merchant_name, amount, account_id, account_name, category, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			item_id=excluded.item_id, date=excluded.date, name=excluded.name,
			merchant_name=excluded.merchant_name, amount=excluded.amount,
			account_id=excluded.account_id, account_name=excluded.account_name,
			category=excluded.category, saved_at=excluded.saved_at`)
	if err != nil {
		return 0, fmt.Errorf("SaveRecords: prepare: %w", err)
	}
	defer stmt.Close()

	savedAt := s.now().UTC()
	for _, r := range records {
		category, err := json.Marshal(nonNilCategory(r.Category))
		if err != nil {
			return 0, fmt.Errorf("SaveRecords: encode category: %w", err)
		}
		var merchant sql.NullString
		if r.MerchantName != nil {
			merchant = sql.NullString{String: *r.MerchantName, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.TransactionID, itemID, r.Date, r.Name, merchant, r.Amount,
			r.AccountID, r.AccountName, string(category), savedAt); err != nil {
			return 0, fmt.Errorf("SaveRecords: insert %s: %w", r.TransactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("SaveRecords: commit: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("item_id", itemID).Int("count", len(records)).Msg("Saved records to SQLite")
	return len(records), nil
}

func nonNilCategory(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}

// Records returns stored records with start <= date <= end, ordered by
// (date, transaction_id). Empty bounds are open.
func (s *Store) Records(ctx context.Context, start, end string) ([]domain.TransactionRecord, error) {
	query := `SELECT transaction_id, date, name, merchant_name, amount, account_id, account_name, category
		FROM transactions
		WHERE (? = '' OR date >= ?) AND (? = '' OR date <= ?)
		ORDER BY date, transaction_id`
	rows, err := s.db.QueryContext(ctx, query, start, start, end, end)
	if err != nil {
		return nil, fmt.Errorf("Records: query: %w", err)
	}
	defer rows.Close()

	records := []domain.TransactionRecord{}
	for rows.Next() {
		var (
			r        domain.TransactionRecord
			merchant sql.NullString
			category string
		)
		if err := rows.Scan(&r.TransactionID, &r.Date, &r.Name, &merchant, &r.Amount, &r.AccountID, &r.AccountName, &category); err != nil {
			return nil, fmt.Errorf("Records: scan: %w", err)
		}
		if merchant.Valid {
			m := merchant.String
			r.MerchantName = &m
		}
		if err := json.Unmarshal([]byte(category), &r.Category); err != nil {
			r.Category = []string{}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Records: iterate: %w", err)
	}
	return records, nil
}

// Load returns every stored record in the parsed-record shape, numbered
// from 1 in (date, transaction_id) order.
func (s *Store) Load(ctx context.Context) ([]txfile.ParsedRecord, error) {
	records, err := s.Records(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	out := make([]txfile.ParsedRecord, 0, len(records))
	for i, r := range records {
		dt, _ := time.Parse("2006-01-02", r.Date)
		p := txfile.ParsedRecord{
			ID:          i + 1,
			Date:        r.Date,
			DateTime:    dt,
			Name:        r.Name,
			Merchant:    r.Name,
			Description: r.Name,
			Amount:      r.Amount,
			Time:        txfile.PlaceholderTime,
		}
		if r.MerchantName != nil && *r.MerchantName != "" {
			p.Merchant = *r.MerchantName
		}
		if r.AccountName != "" {
			name := r.AccountName
			p.AccountName = &name
		}
		out = append(out, p)
	}
	return out, nil
}
