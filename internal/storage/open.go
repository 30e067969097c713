package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"psurops/internal/config"
)

// OpenBackend opens the backend selected by cfg.Driver. Relative SQLite
// paths resolve against root.
func OpenBackend(ctx context.Context, root string, cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryBackend(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, logger)
	case "sqlite", "":
		path := cfg.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		return OpenSQLite(ctx, path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
