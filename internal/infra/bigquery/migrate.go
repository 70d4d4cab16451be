package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsTable = "schema_migrations"

// migrationPattern matches 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is one versioned SQL file. Checksum covers the file as written,
// before placeholders are substituted.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// LoadMigrations reads migrations from the root of fsys ordered by version,
// replacing {{PROJECT_ID}} and {{DATASET_ID}}. Files not named like
// 0001_name.sql are ignored.
func LoadMigrations(fsys fs.FS, projectID, dataset string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("LoadMigrations: reading directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("LoadMigrations: version %04d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("LoadMigrations: reading %s: %w", e.Name(), err)
		}
		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Pending drops migrations whose version is already applied.
func Pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Migrate applies the embedded migrations that are not yet recorded in
// schema_migrations and returns how many ran. appliedBy is stored with each
// record.
func (r *TransactionRepository) Migrate(ctx context.Context, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)
	project := r.client.Project()

	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	all, err := LoadMigrations(sub, project, r.dataset)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	if err := r.runStatement(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.%s`"+` (
			version    INT64 NOT NULL,
			name       STRING NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum   STRING,
			applied_by STRING
		)`, project, r.dataset, migrationsTable), nil); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring %s: %w", migrationsTable, err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	pending := Pending(all, applied)
	for _, m := range pending {
		name := fmt.Sprintf("%04d_%s", m.Version, m.Name)
		if err := r.runStatement(ctx, m.SQL, nil); err != nil {
			return 0, fmt.Errorf("Migrate: executing %s: %w", name, err)
		}
		err := r.runStatement(ctx, fmt.Sprintf(`
			INSERT INTO `+"`%s.%s.%s`"+` (version, name, applied_at, checksum, applied_by)
			VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`,
			project, r.dataset, migrationsTable),
			[]bigquery.QueryParameter{
				{Name: "version", Value: m.Version},
				{Name: "name", Value: m.Name},
				{Name: "checksum", Value: m.Checksum},
				{Name: "applied_by", Value: appliedBy},
			})
		if err != nil {
			return 0, fmt.Errorf("Migrate: recording %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("Applied BigQuery migration")
	}

	log.Info().Int("applied", len(pending)).Int("total", len(all)).Msg("BigQuery migrations up to date")
	return len(pending), nil
}

func (r *TransactionRepository) appliedVersions(ctx context.Context) (map[int]bool, error) {
	q := r.client.Query(fmt.Sprintf("SELECT version FROM `%s.%s.%s`", r.client.Project(), r.dataset, migrationsTable))
	it, err := q.Read(ctx)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return map[int]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appliedVersions: query read: %w", err)
	}

	applied := make(map[int]bool)
	for {
		var row struct {
			Version int64 `bigquery:"version"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("appliedVersions: iter next: %w", err)
		}
		applied[int(row.Version)] = true
	}
	return applied, nil
}

func (r *TransactionRepository) runStatement(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := r.client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	return status.Err()
}
