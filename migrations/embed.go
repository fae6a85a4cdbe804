// Package migrations embeds SQL migration files into the binary.
//
// The playout worker runs its migrations at startup without needing the SQL
// files on disk.
package migrations

import (
	"embed"

	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
