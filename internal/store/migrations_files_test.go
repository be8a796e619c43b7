package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestShippedMigrationsLoad(t *testing.T) {
	migrations, err := LoadMigrations(os.DirFS(filepath.Join("..", "..", "db", "migrations")))
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Version, migrations[i].Version)
		}
	}
	if !strings.Contains(migrations[0].Up, "chapters") {
		t.Fatalf("expected the first migration to create chapters")
	}
}

func TestLoadMigrationsPairsAndSorts(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_lore.up.sql":   {Data: []byte("CREATE TABLE lore();")},
		"0002_lore.down.sql": {Data: []byte("DROP TABLE lore;")},
		"0001_init.up.sql":   {Data: []byte("CREATE TABLE novels();")},
		"0001_init.down.sql": {Data: []byte("DROP TABLE novels;")},
		"README.md":          {Data: []byte("ignored")},
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != "0001" || migrations[1].Name != "lore" {
		t.Fatalf("unexpected migrations %+v", migrations)
	}
	if migrations[1].Down != "DROP TABLE lore;" {
		t.Fatalf("down not paired: %q", migrations[1].Down)
	}
}

func TestLoadMigrationsRejectsHalfPairs(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {
			"0001_init.up.sql": {Data: []byte("SELECT 1;")},
		},
		"missing up": {
			"0001_init.down.sql": {Data: []byte("SELECT 1;")},
		},
		"name mismatch": {
			"0001_init.up.sql":    {Data: []byte("SELECT 1;")},
			"0001_other.down.sql": {Data: []byte("SELECT 1;")},
		},
	}
	for name, fsys := range cases {
		if _, err := LoadMigrations(fsys); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
