package config_test

import (
	"testing"
	"time"

	"storefront/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.SequenceBackendPostgres, cfg.SequenceBackend)
	assert.Equal(t, 30*time.Second, cfg.OrderLockTTL)
	assert.Equal(t, time.Minute, cfg.CartRetryAfter)
	assert.False(t, cfg.IsProd())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_RedisBackendNeedsAddr(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("SEQUENCE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.SequenceBackendRedis, cfg.SequenceBackend)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("SEQUENCE_BACKEND", "etcd")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_NonPositiveDurations(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"ORDER_LOCK_TTL", "0s"},
		{"ORDER_LOCK_TTL", "-1s"},
		{"CART_RETRY_AFTER", "0s"},
		{"CART_RETRY_AFTER", "-5m"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s")
			t.Setenv(tc.key, tc.value)

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestDSNAndMigrateURL(t *testing.T) {
	cfg := config.Config{
		PostgresUser: "u", PostgresPassword: "p", PostgresHost: "h", PostgresPort: 5433, PostgresDB: "d", PostgresSSLMode: "disable",
	}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=d sslmode=disable", cfg.DSN())
	assert.Equal(t, "pgx5://u:p@h:5433/d?sslmode=disable", cfg.MigrateURL())

	cfg.DatabaseURL = "postgres://x:y@db:5432/app"
	assert.Equal(t, cfg.DatabaseURL, cfg.DSN())
	assert.Equal(t, "pgx5://x:y@db:5432/app", cfg.MigrateURL())
}
