// schema.go embeds the SQLite schema and provides schema execution helpers.
//
// Schema files live in sql/ and are executed in alphabetical order (hence
// the numeric prefixes like 001_, 002_). Each file is self-contained and
// uses IF NOT EXISTS clauses so initialisation is idempotent.
//
// The Postgres backend does not run this schema: production schema
// bootstrap is owned by external migration scripts, and the backend only
// assumes the equivalent tables (plus the pgvector column) exist.

package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var schemas embed.FS

// execEmbedded executes all .sql files from the embedded filesystem in
// alphabetical order.
func execEmbedded(db *sql.DB, fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read schema directory: %w", err)
	}

	// Sort entries to ensure deterministic order (should already be sorted, but be explicit)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := dir + "/" + entry.Name()
		data, err := fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := db.Exec(string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func execSchema(db *sql.DB) error {
	return execEmbedded(db, schemas, "sql")
}
