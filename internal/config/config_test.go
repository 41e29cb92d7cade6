package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndAliases(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-alias")
	t.Setenv("DB_URL", "postgres://db/sentinel")
	t.Setenv("PORT", "9090")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.HTTP.Addr)
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.Equal(t, "postgres://db/sentinel", c.Database.URL)
	assert.Equal(t, "from-alias", c.JWT.Secret)
	assert.Equal(t, "from-alias", c.Audit.SealKey, "seal key falls back to the jwt secret")
	assert.Equal(t, 3, c.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, c.Lockout.Duration)
	assert.Equal(t, 90*24*time.Hour, c.Password.MaxAge)
	assert.Equal(t, 30*time.Minute, c.Session.TTL)
	assert.Equal(t, 5, c.RateLimit.LoginPerMinute)
	assert.Equal(t, "Administrator", c.Admin.DisplayName)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "alias")
	t.Setenv("SENTINEL_JWT_SECRET", "prefixed")
	t.Setenv("SENTINEL_LOCKOUT_DURATION", "2m")
	t.Setenv("SENTINEL_STORAGE_DRIVER", "memory")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", c.JWT.Secret)
	assert.Equal(t, 2*time.Minute, c.Lockout.Duration)
	assert.Equal(t, "memory", c.Storage.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  secret: file-secret
storage:
  driver: sqlite
sqlite:
  path: /tmp/x.db
audit:
  seal_key: seal
lockout:
  threshold: 5
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Storage.Driver)
	assert.Equal(t, "/tmp/x.db", c.SQLite.Path)
	assert.Equal(t, "seal", c.Audit.SealKey)
	assert.Equal(t, 5, c.Lockout.Threshold)
}

func TestValidate(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret is required")

	t.Setenv("SENTINEL_JWT_SECRET", "s")
	t.Setenv("SENTINEL_STORAGE_DRIVER", "mongo")
	t.Setenv("SENTINEL_LOCKOUT_THRESHOLD", "0")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage.driver "mongo"`)
	assert.Contains(t, err.Error(), "lockout.threshold")
}
