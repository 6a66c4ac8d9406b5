package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestLoadEntries_Ordered(t *testing.T) {
	entries, err := loadEntries()
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	if len(entries) < 3 {
		t.Fatalf("got %d entries, want at least 3", len(entries))
	}
	if entries[0].version != "000_migrations_table.sql" {
		t.Errorf("first migration = %q, want the tracking table", entries[0].version)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].version >= entries[i].version {
			t.Errorf("entries out of order: %q before %q", entries[i-1].version, entries[i].version)
		}
	}
}

func TestMigrationsCreateRequiredTables(t *testing.T) {
	entries, err := loadEntries()
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	var all strings.Builder
	for _, e := range entries {
		all.WriteString(e.sql)
	}
	for _, table := range RequiredTables {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("no migration creates %q", table)
		}
	}
}

type boolRow struct {
	v   bool
	err error
}

func (r boolRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.v
	return nil
}

type fakeCatalog struct {
	tables map[string]bool
	err    error
}

func (f fakeCatalog) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return boolRow{v: f.tables[args[0].(string)], err: f.err}
}

func TestCheckTables(t *testing.T) {
	tests := []struct {
		name    string
		db      fakeCatalog
		wantErr string
	}{
		{
			name: "all present",
			db:   fakeCatalog{tables: map[string]bool{"places": true, "route_cache": true}},
		},
		{
			name:    "missing table",
			db:      fakeCatalog{tables: map[string]bool{"places": true}},
			wantErr: `"route_cache" is missing`,
		},
		{
			name:    "query error",
			db:      fakeCatalog{err: errors.New("conn reset")},
			wantErr: "conn reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTables(context.Background(), tt.db, RequiredTables)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
