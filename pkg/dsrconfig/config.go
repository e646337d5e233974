// Package dsrconfig declares the environment-driven configuration for the
// datasource router's two backing pools, grounded on the teacher's
// PostgresConnection fields (common/mpostgres/postgres.go) but loaded
// through struct tags instead of being assembled by hand at the call site.
package dsrconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// PoolConfig is the read/write pool pair the router dials at startup. Field
// names mirror PostgresConnection's ConnectionStringPrimary/Replica and
// PrimaryDBName/ReplicaDBName, generalized to env-tag driven loading the way
// every other example repo in the pack configures its Postgres pools.
type PoolConfig struct {
	PrimaryDSN string `env:"DSR_PRIMARY_DSN,required"`
	ReplicaDSN string `env:"DSR_REPLICA_DSN,required"`

	PrimaryDBName string `env:"DSR_PRIMARY_DB_NAME" envDefault:"primary"`
	ReplicaDBName string `env:"DSR_REPLICA_DB_NAME" envDefault:"replica"`

	MaxOpenConnsPrimary int `env:"DSR_PRIMARY_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConnsPrimary int `env:"DSR_PRIMARY_MAX_IDLE_CONNS" envDefault:"5"`
	MaxOpenConnsReplica int `env:"DSR_REPLICA_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConnsReplica int `env:"DSR_REPLICA_MAX_IDLE_CONNS" envDefault:"5"`

	// FallbackToPrimaryOnReplicaError lets a read that can't reach the
	// replica pool fall back to the primary rather than fail the request
	// outright, a documented open-question resolution (see DESIGN.md).
	FallbackToPrimaryOnReplicaError bool `env:"DSR_FALLBACK_TO_PRIMARY" envDefault:"true"`
}

// Load reads a PoolConfig from the process environment.
func Load() (*PoolConfig, error) {
	cfg := &PoolConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("dsrconfig: %w", err)
	}

	return cfg, nil
}
