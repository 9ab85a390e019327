package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("SWEEP_AUCTION_TIMEOUT", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StorageMemory, cfg.StorageDriver)
	require.Equal(t, 60*time.Second, cfg.SweepInterval)
	require.Equal(t, 8, cfg.SweepConcurrency)
	require.Equal(t, 10*time.Second, cfg.SweepAuctionTimeout)
	require.False(t, cfg.SeedDemoData)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "5s")
	t.Setenv("SWEEP_CONCURRENCY", "2")
	t.Setenv("SWEEP_AUCTION_TIMEOUT", "750ms")
	t.Setenv("STORAGE_DRIVER", StoragePostgres)
	t.Setenv("DATABASE_URL", "postgres://localhost/bidflow")
	t.Setenv("SEED_DEMO_DATA", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.SweepInterval)
	require.Equal(t, 2, cfg.SweepConcurrency)
	require.Equal(t, 750*time.Millisecond, cfg.SweepAuctionTimeout)
	require.Equal(t, StoragePostgres, cfg.StorageDriver)
	require.True(t, cfg.SeedDemoData)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing_secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "bad_interval", env: map[string]string{"JWT_SECRET": "s", "SWEEP_INTERVAL": "soon"}},
		{name: "zero_interval", env: map[string]string{"JWT_SECRET": "s", "SWEEP_INTERVAL": "0s"}},
		{name: "bad_auction_timeout", env: map[string]string{"JWT_SECRET": "s", "SWEEP_AUCTION_TIMEOUT": "later"}},
		{name: "negative_auction_timeout", env: map[string]string{"JWT_SECRET": "s", "SWEEP_AUCTION_TIMEOUT": "-1s"}},
		{name: "bad_concurrency", env: map[string]string{"JWT_SECRET": "s", "SWEEP_CONCURRENCY": "0"}},
		{name: "postgres_without_url", env: map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": StoragePostgres, "DATABASE_URL": ""}},
		{name: "unknown_driver", env: map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "mongo"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
