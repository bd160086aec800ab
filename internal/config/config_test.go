package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "DATABASE_DRIVER", "JWT_SECRET", "TELEGRAM_BOT_TOKEN", "PORT"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt_secret: 0123456789abcdef0123
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	require.Equal(t, "ypgattendance", cfg.Auth.Issuer)
	require.Equal(t, defaultTiers(), cfg.Lockout.Password)
	require.Equal(t, defaultTiers(), cfg.Lockout.Pin)
	require.False(t, cfg.SMTPEnabled())
}

func TestLoadParsesLockoutLadder(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt_secret: 0123456789abcdef0123
  access_ttl: 90m
lockout:
  pin:
    - threshold: 2
      duration: 15m
    - threshold: 4
      duration: 2h
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, []LockoutTier{{2, 15 * time.Minute}, {4, 2 * time.Hour}}, cfg.Lockout.Pin)
	require.Equal(t, defaultTiers(), cfg.Lockout.Password)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
database:
  url: postgres://file
auth:
  jwt_secret: short
`)
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "an-env-secret-of-enough-length")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "postgres://env", cfg.Database.DSN)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "an-env-secret-of-enough-length", cfg.Auth.JWTSecret)
}

func TestMissingFileUsesEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "an-env-secret-of-enough-length")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"postgres without url": "auth:\n  jwt_secret: 0123456789abcdef0123\n",
		"unknown driver":       "database:\n  driver: mysql\nauth:\n  jwt_secret: 0123456789abcdef0123\n",
		"short secret":         "database:\n  driver: memory\nauth:\n  jwt_secret: abc\n",
		"refresh below access": "database:\n  driver: memory\nauth:\n  jwt_secret: 0123456789abcdef0123\n  access_ttl: 2h\n  refresh_ttl: 1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestBadPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := Load(writeConfig(t, "database:\n  driver: memory\n"))
	require.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Setenv("YPG_CONFIG", "")
	require.Equal(t, DefaultPath, ResolvePath())
	t.Setenv("YPG_CONFIG", "/etc/ypg.yaml")
	require.Equal(t, "/etc/ypg.yaml", ResolvePath())
}
