package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/uptrace/bun"
)

const (
	gooseUpMarker   = "-- +goose Up"
	gooseDownMarker = "-- +goose Down"
)

// applyMigrations runs the Up half of every file in migrations/ in name order.
func applyMigrations(ctx context.Context, db bun.IDB) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		up, err := gooseUp(string(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, stmt := range statements(up) {
			if _, err := db.NewRaw(pinExtensionSchema(stmt)).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")), nil
}

func gooseUp(sql string) (string, error) {
	_, rest, ok := strings.Cut(sql, gooseUpMarker)
	if !ok {
		return "", fmt.Errorf("missing %q", gooseUpMarker)
	}
	up, _, _ := strings.Cut(rest, gooseDownMarker)
	return strings.TrimSpace(up), nil
}

// Extensions land in public so per-test schemas can be dropped freely.
func pinExtensionSchema(stmt string) string {
	upper := strings.ToUpper(stmt)
	if strings.HasPrefix(upper, "CREATE EXTENSION") && !strings.Contains(upper, " SCHEMA ") {
		return stmt + " SCHEMA public"
	}
	return stmt
}

func statements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
