package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, ModeProd, cfg.Mode)
	require.Equal(t, 8080, cfg.Listener.Port)
	require.True(t, cfg.CORSEnabled)
	require.Positive(t, cfg.MaxMemoriesPerUser)
}

func TestApplyEnv_OverlaysDefaults(t *testing.T) {
	t.Setenv("OPENMEMORY_REGION_PATH", "/tmp/custom.db")
	t.Setenv("OPENMEMORY_PORT", "9090")
	t.Setenv("OPENMEMORY_MAINTENANCE_INTERVAL", "1m")
	t.Setenv("OPENMEMORY_MAX_BODY_SIZE", "4MB")
	t.Setenv("OPENMEMORY_CORS_ENABLED", "false")
	t.Setenv("OPENMEMORY_API_KEYS_ALICE", "key-a,key-b")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, "/tmp/custom.db", cfg.RegionPath)
	require.Equal(t, 9090, cfg.Listener.Port)
	require.Equal(t, time.Minute, cfg.MaintenanceInterval)
	require.Equal(t, int64(4*1024*1024), cfg.MaxBodySize)
	require.False(t, cfg.CORSEnabled)
	require.Equal(t, "alice", cfg.APIKeys["key-a"])
	require.Equal(t, "alice", cfg.APIKeys["key-b"])
}

func TestApplyEnv_LeavesUnsetFieldsAlone(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.DefaultEmbeddingModel
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, before, cfg.DefaultEmbeddingModel)
}

func TestFromContext_RoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(t.Context(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}
