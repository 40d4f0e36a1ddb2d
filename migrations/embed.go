// Package migrations embeds the SQL schema so the migration script and the
// test harness apply exactly the same files.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var FS embed.FS

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Files lists the migrations for direction ("up" or "down") in the order they
// must run: ascending for up, descending for down.
func Files(direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be 'up' or 'down', got %q", direction)
	}

	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), "."+direction+".sql") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

// Apply runs every migration for direction and returns the files that ran
// before any failure.
func Apply(ctx context.Context, db execer, direction string) ([]string, error) {
	files, err := Files(direction)
	if err != nil {
		return nil, err
	}

	for i, name := range files {
		content, err := FS.ReadFile(name)
		if err != nil {
			return files[:i], fmt.Errorf("read migration file %s: %w", name, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return files[:i], fmt.Errorf("execute migration %s: %w", name, err)
		}
	}

	return files, nil
}
