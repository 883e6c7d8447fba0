package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/carelink")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "carelink", cfg.Issuer)
	require.Equal(t, "carelink-join", cfg.Audience)
	require.Equal(t, 20*time.Minute, cfg.TokenTTL)
	require.Equal(t, 60*time.Minute, cfg.SessionTTL)
	require.Equal(t, 120*time.Second, cfg.ClockSkew)
	require.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/carelink")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("CLOCK_SKEW", "60")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.TokenTTL)
	require.Equal(t, 60*time.Second, cfg.ClockSkew)
}

func TestLoad_RequiredDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ProdRequiresKey(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/carelink")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SIGNING_KEY_PATH", "")

	_, err := Load()
	require.Error(t, err)
}
