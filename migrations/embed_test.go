package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsCreateSnapshotTables(t *testing.T) {
	names, err := fs.Glob(Files, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no migrations embedded")
	}
	raw, err := fs.ReadFile(Files, names[0])
	if err != nil {
		t.Fatalf("read %s: %v", names[0], err)
	}
	for _, table := range []string{"offenders", "cases", "collections"} {
		if !strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected table %s in %s", table, names[0])
		}
	}
}
