package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"frameworks/herald/pkg/logging"

	schema "frameworks/herald/pkg/database/sql"
)

// Migrate applies every embedded schema file in name order. Files are
// written to be idempotent so Migrate runs on every start.
func Migrate(ctx context.Context, db *sql.DB, logger logging.Logger) error {
	return applySchema(ctx, db, schema.Content, "schema", logger)
}

func applySchema(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger logging.Logger) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}
	return nil
}
