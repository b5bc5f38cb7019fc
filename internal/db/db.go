// Package db opens the SQL connection backing the agent store.
package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kandev/agentperms/internal/common/config"
)

// Open connects to the database selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.DSN, cfg.MaxConns, cfg.MinConns)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
