package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "CourseKit", cfg.AppName)
	require.Equal(t, "memory", cfg.Registry.Driver)
	require.Equal(t, 1200*time.Millisecond, cfg.Session.GraceWindow)
	require.Equal(t, 5*time.Second, cfg.Session.CallTimeout)
	require.Equal(t, "coursekit_session", cfg.Session.CookieName)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "PROD")
	t.Setenv("REGISTRY_DRIVER", "redis")
	t.Setenv("SESSION_GRACE_WINDOW", "2s")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Addr())
	require.False(t, cfg.IsDev())
	require.Equal(t, "redis", cfg.Registry.Driver)
	require.Equal(t, 2*time.Second, cfg.Session.GraceWindow)
}

func TestAddrWithColon(t *testing.T) {
	cfg := config.Config{Port: ":8080"}
	require.Equal(t, ":8080", cfg.Addr())
}
