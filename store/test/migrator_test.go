package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/store"
	"github.com/hrygo/soulmap/store/db"
)

func TestMigrate_RecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	want, err := ts.GetCurrentSchemaVersion()
	require.NoError(t, err)
	require.Equal(t, "0.2.1", want)

	got, err := ts.GetSystemSetting(ctx, store.SchemaVersionSettingName)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Running again on an initialized database changes nothing.
	require.NoError(t, ts.Migrate(ctx))
	got, err = ts.GetSystemSetting(ctx, store.SchemaVersionSettingName)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMigrate_UpgradesOlderSchema(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	require.NoError(t, ts.UpsertSystemSetting(ctx, store.SchemaVersionSettingName, "0.2.0"))
	require.NoError(t, ts.Migrate(ctx))

	got, err := ts.GetSystemSetting(ctx, store.SchemaVersionSettingName)
	require.NoError(t, err)
	require.Equal(t, "0.2.1", got)
}

func TestMigrate_SeedsDemoData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:          "demo",
		Driver:        "sqlite",
		Data:          dir,
		DSN:           filepath.Join(dir, "soulmap_demo.db"),
		DefaultUserID: "default-user",
	}
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	ts := store.New(driver, p)
	t.Cleanup(func() { _ = ts.Close() })

	require.NoError(t, ts.Migrate(ctx))

	userID := "default-user"
	entries, total, err := ts.ListJournalEntries(ctx, &store.FindJournalEntry{UserID: &userID})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, entries, 2)

	nodes := listAllNodes(ctx, t, ts, userID)
	require.Len(t, nodes, 3)
	edges := listAllEdges(ctx, t, ts, userID)
	require.Len(t, edges, 2)

	// Seeding happens on a fresh database only.
	require.NoError(t, ts.Migrate(ctx))
	_, total, err = ts.ListJournalEntries(ctx, &store.FindJournalEntry{UserID: &userID})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}
