// Package migrations exposes the embedded SQL schema for the callback
// ledger and registers it with a persistence client per dialect.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// FS returns the full embedded migration tree.
func FS() fs.FS {
	return migrationsFS
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Filesystems resolves one migration filesystem per dialect. Postgres
// migrations sit at the tree root, sqlite overrides under sqlite/.
func Filesystems() ([]FilesystemSpec, error) {
	base, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve migrations root: %w", err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: "data/sql/migrations", FS: base},
		{Dialect: DialectSQLite, Path: "data/sql/migrations/sqlite", FS: sqliteFS},
	}
	for _, fsys := range filesystems {
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", fsys.Dialect, fsys.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", fsys.Dialect, fsys.Path)
		}
	}
	return filesystems, nil
}

// Register invokes registerFn for each dialect named in targets; with
// no targets, every dialect is registered.
func Register(ctx context.Context, registerFn RegisterFunc, targets ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return err
	}
	wanted := map[string]struct{}{}
	for _, target := range targets {
		trimmed := strings.TrimSpace(strings.ToLower(target))
		if trimmed != "" {
			wanted[trimmed] = struct{}{}
		}
	}
	for _, fsys := range filesystems {
		if len(wanted) > 0 {
			if _, ok := wanted[fsys.Dialect]; !ok {
				continue
			}
		}
		if err := registerFn(ctx, fsys.Dialect, fsys.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return nil
}
