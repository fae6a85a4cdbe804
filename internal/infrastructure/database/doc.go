// Package database provides SQLite connectivity for the playout worker.
//
// The database holds the playout read model (storages, assets, bins, items,
// events) that the external catalog keeps up to date, and the as-run log
// the worker appends to on every confirmed advance.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations (see the migrations package)
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.{up,down}.sql and are
// applied oldest first, each in its own transaction.
package database
