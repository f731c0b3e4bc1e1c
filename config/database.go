package config

import (
	"context"
	"fmt"

	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/objectives"
	"github.com/warp/commission-engine/store/postgres"
	"github.com/warp/commission-engine/store/sqldb"
	"github.com/warp/commission-engine/store/sqlite"
	"go.uber.org/zap"
)

// Open connects to the configured store. SQLite databases are migrated on
// open; PostgreSQL schemas are owned by the CRM.
func (c DatabaseConfig) Open(ctx context.Context, log *zap.Logger) (*sqldb.DB, error) {
	switch c.Driver {
	case "sqlite":
		return sqlite.New(c.Path, log)
	case "postgres":
		return postgres.New(ctx, c.DSN, log)
	}
	return nil, fmt.Errorf("unknown database driver %q", c.Driver)
}

// EngineOptions returns the objectives options and January exceptions for
// engine.New.
func (c *Config) EngineOptions() (objectives.Options, []generic.SalespersonID, error) {
	opts, err := c.Objectives.ApportionOptions()
	if err != nil {
		return objectives.Options{}, nil, err
	}
	return opts, c.Objectives.JanuaryExceptionIDs(), nil
}
