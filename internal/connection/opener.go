package connection

import (
	"context"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/database/sqlite"
)

// SQLiteOpener returns an Opener that opens files with the sqlite driver,
// applying base's pool and mode settings to every path.
func SQLiteOpener(base *database.Config) Opener {
	return func(ctx context.Context, path string) (database.DB, error) {
		cfg := *base
		cfg.Path = path
		return sqlite.Open(ctx, &cfg)
	}
}
