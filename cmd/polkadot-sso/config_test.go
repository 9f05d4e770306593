package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("set default option", func(t *testing.T) {
		c := NewConfig()

		require.Equal(t, "localhost:9000", c.ListenAddr, "default listen address not set")
		require.Equal(t, "polkadot-sso.db", c.DatabasePath, "default database path not set")
		require.Equal(t, "info", c.LogLevel, "default log level not set")
		require.Equal(t, "", c.SecretKey, "secret key should be empty by default")
		require.Equal(t, "", c.RedisURL, "redis URL should be empty by default")
		require.Equal(t, 2, c.PoolMinConns)
		require.Equal(t, 10, c.PoolMaxConns)
		require.Equal(t, 10*time.Second, c.PoolAcquireTimeout)
		require.Equal(t, 60*time.Second, c.PoolIdleTimeout)
		require.Equal(t, 30*time.Second, c.PoolReapInterval)
	})

	t.Run("load env", func(t *testing.T) {
		c := NewConfig()
		getenv := func(key string) string {
			switch key {
			case "RUN_ADDRESS":
				return "localhost:8080"
			case "DATABASE_PATH":
				return "/var/lib/sso/sso.db"
			case "SECRET_KEY":
				return "secret"
			case "REDIS_URL":
				return "redis://localhost:6379/0"
			case "LOG_LEVEL":
				return "debug"
			case "SIWE_DOMAIN":
				return "sso.example.com"
			case "POOL_MAX_CONNS":
				return "25"
			case "POOL_ACQUIRE_TIMEOUT":
				return "3s"
			case "POOL_REAP_INTERVAL":
				return "45s"
			default:
				return ""
			}
		}

		c.LoadEnv(getenv)

		require.Equal(t, "localhost:8080", c.ListenAddr)
		require.Equal(t, "/var/lib/sso/sso.db", c.DatabasePath)
		require.Equal(t, "secret", c.SecretKey)
		require.Equal(t, "redis://localhost:6379/0", c.RedisURL)
		require.Equal(t, "debug", c.LogLevel)
		require.Equal(t, "sso.example.com", c.SIWEDomain)
		require.Equal(t, 25, c.PoolMaxConns)
		require.Equal(t, 3*time.Second, c.PoolAcquireTimeout)
		require.Equal(t, 45*time.Second, c.PoolReapInterval)
	})

	t.Run("malformed env values keep defaults", func(t *testing.T) {
		c := NewConfig()
		getenv := func(key string) string {
			switch key {
			case "POOL_MIN_CONNS":
				return "not-a-number"
			case "POOL_IDLE_TIMEOUT":
				return "soon"
			default:
				return ""
			}
		}

		c.LoadEnv(getenv)

		require.Equal(t, 2, c.PoolMinConns)
		require.Equal(t, 60*time.Second, c.PoolIdleTimeout)
	})

	t.Run("parse flags", func(t *testing.T) {
		c := NewConfig()
		err := c.ParseFlags([]string{
			"-a", "localhost:7000",
			"-d", "test.db",
			"-s", "flag-secret",
			"--pool-max", "7",
			"--pool-acquire-timeout", "2s",
			"--pool-reap-interval", "10s",
			"--chain-id", "kusama",
		})
		require.NoError(t, err)

		require.Equal(t, "localhost:7000", c.ListenAddr)
		require.Equal(t, "test.db", c.DatabasePath)
		require.Equal(t, "flag-secret", c.SecretKey)
		require.Equal(t, 7, c.PoolMaxConns)
		require.Equal(t, 2*time.Second, c.PoolAcquireTimeout)
		require.Equal(t, 10*time.Second, c.PoolReapInterval)
		require.Equal(t, "kusama", c.ChainID)

		err = c.ParseFlags([]string{"--unknown-flag"})
		require.Error(t, err)
	})
}
