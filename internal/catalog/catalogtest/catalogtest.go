// Package catalogtest provides a migrated SQLite read model and fixture
// helpers for tests in packages that consume the catalog.
package catalogtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/database"
	_ "github.com/nebulabroadcast/nebula-worker/migrations" // Registers the embedded schema
)

// OpenDB returns a fully migrated database in a temporary directory.
func OpenDB(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(tb.TempDir(), "nebula.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}

// Fixture inserts read-model rows, failing the test on any error.
type Fixture struct {
	tb testing.TB
	db *database.DB
}

// NewFixture wraps db for fixture inserts.
func NewFixture(tb testing.TB, db *database.DB) *Fixture {
	return &Fixture{tb: tb, db: db}
}

func (f *Fixture) exec(query string, args ...any) {
	f.tb.Helper()
	if _, err := f.db.ExecContext(context.Background(), query, args...); err != nil {
		f.tb.Fatalf("fixture insert failed: %v", err)
	}
}

// Asset inserts an asset. Zero FPS and empty status default to 25 and online.
func (f *Fixture) Asset(a catalog.Asset) {
	f.tb.Helper()
	if a.FPS == 0 {
		a.FPS = 25
	}
	if a.Status == "" {
		a.Status = catalog.StatusOnline
	}
	f.exec(`INSERT INTO assets (id, title, storage_id, path, duration, fps, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.StorageID, a.Path, a.Duration, a.FPS, string(a.Status))
}

// Playout sets the playout rendition status of an asset on a channel.
func (f *Fixture) Playout(assetID int64, channelID int, status catalog.ObjectStatus) {
	f.tb.Helper()
	f.exec(`INSERT OR REPLACE INTO asset_playout (asset_id, channel_id, status) VALUES (?, ?, ?)`,
		assetID, channelID, string(status))
}

// Bin inserts an empty bin.
func (f *Fixture) Bin(id int64) {
	f.tb.Helper()
	f.exec(`INSERT INTO bins (id) VALUES (?)`, id)
}

// Item inserts an item. An empty run mode defaults to auto.
func (f *Fixture) Item(it catalog.Item) {
	f.tb.Helper()
	if it.RunMode == "" {
		it.RunMode = catalog.RunAuto
	}
	var assetID any
	if it.AssetID != 0 {
		assetID = it.AssetID
	}
	f.exec(`INSERT INTO items (id, bin_id, asset_id, position, title, mark_in, mark_out,
			duration, item_role, run_mode, loop)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.BinID, assetID, it.Position, it.Title, it.MarkIn, it.MarkOut,
		it.Duration, string(it.Role), string(it.RunMode), it.Loop)
}

// Event inserts an event. An empty run mode defaults to auto.
func (f *Fixture) Event(ev catalog.Event) {
	f.tb.Helper()
	if ev.RunMode == "" {
		ev.RunMode = catalog.RunAuto
	}
	var binID any
	if ev.BinID != 0 {
		binID = ev.BinID
	}
	f.exec(`INSERT INTO events (id, channel_id, start, title, run_mode, bin_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ChannelID, catalog.UnixSeconds(ev.Start), ev.Title, string(ev.RunMode), binID)
}
