package dsrconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DSR_PRIMARY_DSN", "postgres://primary")
	t.Setenv("DSR_REPLICA_DSN", "postgres://replica")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.PrimaryDSN)
	assert.Equal(t, "postgres://replica", cfg.ReplicaDSN)
	assert.Equal(t, 20, cfg.MaxOpenConnsPrimary)
	assert.Equal(t, 5, cfg.MaxIdleConnsPrimary)
	assert.True(t, cfg.FallbackToPrimaryOnReplicaError)
}

func TestLoadRequiresDSNs(t *testing.T) {
	os.Unsetenv("DSR_PRIMARY_DSN")
	os.Unsetenv("DSR_REPLICA_DSN")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("DSR_PRIMARY_DSN", "postgres://primary")
	t.Setenv("DSR_REPLICA_DSN", "postgres://replica")
	t.Setenv("DSR_FALLBACK_TO_PRIMARY", "false")
	t.Setenv("DSR_REPLICA_MAX_OPEN_CONNS", "40")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.FallbackToPrimaryOnReplicaError)
	assert.Equal(t, 40, cfg.MaxOpenConnsReplica)
}
