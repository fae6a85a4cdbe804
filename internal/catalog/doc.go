// Package catalog is the playout worker's read view of the Nebula catalogue.
//
// The catalogue service owns assets, bins, items and events and keeps the
// SQLite read model current. The worker only queries it, with one exception:
// toggling loop on the on-air item is written back through SetItemLoop.
//
// # Key Types
//
//   - Item: a playlist entry, optionally referencing an Asset
//   - Event: a schedule entry pointing at a Bin (the playlist)
//   - Asset: media with a storage reference and per-channel playout status
//   - Storages: resolves storage ids to local mount points
//
// Status and run-mode values are named string enumerations, stored as text
// in the database and checked by CHECK constraints in the schema.
//
// # Usage
//
//	repo := catalog.NewSQLiteRepository(db.DB)
//	item, err := repo.GetItem(ctx, 42)
//	if errors.Is(err, catalog.ErrItemNotFound) {
//	    // handle missing item
//	}
package catalog
