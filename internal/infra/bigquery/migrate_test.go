package bigquery

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql":       {Data: []byte("SELECT 2 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.t`")},
		"0001_first.sql":        {Data: []byte("SELECT 1")},
		"001_short_version.sql": {Data: []byte("ignored")},
		"0003_no_extension":     {Data: []byte("ignored")},
		"README.md":             {Data: []byte("ignored")},
	}

	got, err := LoadMigrations(fsys, "proj", "ds")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2: %+v", len(got), got)
	}
	if got[0].Version != 1 || got[0].Name != "first" || got[1].Version != 2 || got[1].Name != "second" {
		t.Errorf("migrations = %+v", got)
	}
	if got[1].SQL != "SELECT 2 FROM `proj.ds.t`" {
		t.Errorf("SQL = %q", got[1].SQL)
	}

	again, _ := LoadMigrations(fsys, "other", "ds2")
	if again[1].Checksum != got[1].Checksum {
		t.Error("checksum must not depend on placeholder values")
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 1")},
	}
	if _, err := LoadMigrations(fsys, "p", "d"); err == nil {
		t.Error("Expected error for duplicate version")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := Pending(all, map[int]bool{1: true, 3: true})
	if len(got) != 1 || got[0].Version != 2 {
		t.Errorf("Pending() = %+v", got)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	got, err := LoadMigrations(sub, "proj", "ds")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, m := range got {
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%04d_%s has unreplaced placeholders", m.Version, m.Name)
		}
		if !strings.Contains(m.SQL, "`proj.ds.") {
			t.Errorf("%04d_%s does not target the dataset", m.Version, m.Name)
		}
	}
}
