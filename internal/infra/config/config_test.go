package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "postgres", cfg.Feed.Backend)
	require.Equal(t, 500*time.Millisecond, cfg.Debounce())
	require.Equal(t, 4, cfg.Sync.Workers)
	require.Equal(t, time.Minute, cfg.PublishInterval())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_DEBOUNCE_MS", "50")
	t.Setenv("FEED_BACKEND", "redis")
	t.Setenv("SYNC_PING_SECONDS", "3")

	cfg := Load()

	require.Equal(t, "redis", cfg.Feed.Backend)
	require.Equal(t, 50*time.Millisecond, cfg.Debounce())
	require.Equal(t, 3*time.Second, cfg.PingInterval())
}
