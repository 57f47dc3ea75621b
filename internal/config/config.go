// Package config loads node configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/gameroom/internal/ledger"
	"github.com/roach88/gameroom/internal/projection"
)

// Config is the runtime configuration of a gameroom node. CLI flags
// override individual fields after Load.
type Config struct {
	// Ledger state backend: memory, sqlite or redis.
	LedgerBackend string `env:"GAMEROOM_LEDGER_BACKEND" envDefault:"sqlite"`
	LedgerPath    string `env:"GAMEROOM_LEDGER_PATH" envDefault:"ledger.db"`
	RedisURL      string `env:"GAMEROOM_REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Projection database: sqlite3 or pgx.
	DBDriver string `env:"GAMEROOM_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN    string `env:"GAMEROOM_DB_DSN" envDefault:"gameroom.db"`

	// Identity recorded on notifications.
	NodeID    string `env:"GAMEROOM_NODE_ID" envDefault:"node-0"`
	Requester string `env:"GAMEROOM_REQUESTER"`

	SkipDelivered   bool   `env:"GAMEROOM_SKIP_DELIVERED" envDefault:"true"`
	MaxRedeliveries uint64 `env:"GAMEROOM_MAX_REDELIVERIES" envDefault:"5"`
}

// Load parses the environment. Callers apply their overrides and then
// call Validate.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated values and required fields.
func (c Config) Validate() error {
	var errs []error
	switch c.LedgerBackend {
	case ledger.BackendMemory, ledger.BackendSQLite, ledger.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("GAMEROOM_LEDGER_BACKEND: unknown backend %q", c.LedgerBackend))
	}
	switch c.DBDriver {
	case projection.DriverSQLite, projection.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("GAMEROOM_DB_DRIVER: unknown driver %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("GAMEROOM_DB_DSN is required"))
	}
	if c.NodeID == "" {
		errs = append(errs, errors.New("GAMEROOM_NODE_ID is required"))
	}
	return errors.Join(errs...)
}
