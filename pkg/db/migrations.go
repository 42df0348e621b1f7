package db

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// LoadMigrationFiles returns the contents of the .sql files in dir, sorted by name.
// An empty dir selects the migrations compiled into the binary.
func LoadMigrationFiles(dir string) ([]string, error) {
	var fsys fs.FS
	root := "."
	if dir == "" {
		fsys = embeddedMigrations
		root = "migrations"
	} else {
		fsys = os.DirFS(dir)
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %q: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, root+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, name, err)
		}
		out = append(out, string(data))
	}
	slog.Debug(fmt.Sprintf("%s - Loaded %d migration files from %q", migrationsLogPrefix, len(out), dir))
	return out, nil
}
