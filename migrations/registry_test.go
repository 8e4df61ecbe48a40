package migrations

import (
	"context"
	"io/fs"
	"testing"
)

func TestFilesystems_ExposeUpMigrationsPerDialect(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	seen := map[string]bool{}
	for _, spec := range filesystems {
		seen[spec.Dialect] = true
		matches, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", spec.Dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("dialect %s has no up migrations", spec.Dialect)
		}
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("missing dialect coverage: %v", seen)
	}
}

func TestRegister_FiltersByTarget(t *testing.T) {
	var dialects []string
	err := Register(context.Background(), func(_ context.Context, dialect string, fsys fs.FS) error {
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		dialects = append(dialects, dialect)
		return nil
	}, DialectSQLite)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(dialects) != 1 || dialects[0] != DialectSQLite {
		t.Fatalf("dialects = %v", dialects)
	}
}

func TestRegister_RequiresFunc(t *testing.T) {
	if err := Register(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil register function")
	}
}
