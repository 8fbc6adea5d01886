package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/store"
	"github.com/hrygo/soulmap/store/db"
)

// getDriverFromEnv selects the driver under test: DRIVER=postgres runs the suite
// against POSTGRES_TEST_DSN, anything else uses a temporary SQLite file.
func getDriverFromEnv() string {
	if os.Getenv("DRIVER") == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// NewTestingStore opens and migrates a fresh store for one test.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Mode:              "dev",
		Driver:            getDriverFromEnv(),
		DefaultUserID:     "default-user",
		GraphWeightPolicy: profile.WeightPolicyLatest,
		GraphDecayFactor:  0.5,
	}
	switch p.Driver {
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN not set")
		}
		p.DSN = dsn
	default:
		dir := t.TempDir()
		p.Data = dir
		p.DSN = filepath.Join(dir, fmt.Sprintf("soulmap_%s.db", p.Mode))
	}

	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	if p.Driver == "postgres" {
		resetPostgres(ctx, t, driver)
	}

	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// resetPostgres drops the schema so each test starts from LATEST.sql.
func resetPostgres(ctx context.Context, t *testing.T, driver store.Driver) {
	t.Helper()
	for _, table := range []string{"graph_edge", "graph_node_entry", "graph_node", "journal_entry", "system_setting"} {
		if _, err := driver.GetDB().ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to drop %s: %v", table, err)
		}
	}
}
