package migration

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/database"
)

func newSQLiteMigrator(t *testing.T) *Migrator {
	t.Helper()
	db, err := database.OpenSQL("sqlite", filepath.Join(t.TempDir(), "procura.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Configure("sqlite"); err != nil {
		t.Fatalf("configure goose: %v", err)
	}
	return &Migrator{db: db, logger: zap.NewNop()}
}

func purchasesTableExists(t *testing.T, m *Migrator) bool {
	t.Helper()
	var count int
	err := m.db.DB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'purchases'").Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestUpCreatesPurchasesTable(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if !purchasesTableExists(t, m) {
		t.Fatal("expected purchases table after Up")
	}

	if err := m.Up(ctx); err != nil {
		t.Fatalf("second Up() should be a no-op, got %v", err)
	}
}

func TestDownDropsPurchasesTable(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := m.Down(ctx, 0, true); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if purchasesTableExists(t, m) {
		t.Fatal("expected purchases table to be dropped")
	}
}

func TestGooseDialect(t *testing.T) {
	for driver, want := range map[string]string{"postgres": "postgres", "mysql": "mysql", "sqlite": "sqlite3"} {
		got, err := gooseDialect(driver)
		if err != nil || got != want {
			t.Fatalf("gooseDialect(%q) = %q, %v", driver, got, err)
		}
	}
	if _, err := gooseDialect("mongo"); err == nil {
		t.Fatal("mongo has no goose dialect")
	}
}
