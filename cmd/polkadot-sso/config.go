package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	defaultListenAddr     = "localhost:9000"
	defaultDatabasePath   = "polkadot-sso.db"
	defaultLogLevel       = "info"
	defaultEnvironment    = "production"
	defaultSIWEDomain     = "localhost"
	defaultSIWEURI        = "http://localhost:9000"
	defaultChainID        = "polkadot"
	defaultMinConns       = 2
	defaultMaxConns       = 10
	defaultAcquireTimeout = 10 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultReapInterval   = 30 * time.Second
)

type Config struct {
	// Address on which the SSO service will be run
	ListenAddr string

	// SQLite database file
	DatabasePath string

	// Secret key for signing session tokens. Required.
	SecretKey string

	// Redis connection URL. Optional; when empty the service falls
	// back to an in-process cache and event bus.
	RedisURL string

	// Default logging level
	LogLevel string

	// Environment (development, production)
	Environment string

	// SIWE message parameters presented to wallets
	SIWEDomain string
	SIWEURI    string
	ChainID    string

	// Connection pool sizing
	PoolMinConns       int
	PoolMaxConns       int
	PoolAcquireTimeout time.Duration
	PoolIdleTimeout    time.Duration
	PoolReapInterval   time.Duration
}

func NewConfig() *Config {
	return &Config{
		ListenAddr:         defaultListenAddr,
		DatabasePath:       defaultDatabasePath,
		LogLevel:           defaultLogLevel,
		Environment:        defaultEnvironment,
		SIWEDomain:         defaultSIWEDomain,
		SIWEURI:            defaultSIWEURI,
		ChainID:            defaultChainID,
		PoolMinConns:       defaultMinConns,
		PoolMaxConns:       defaultMaxConns,
		PoolAcquireTimeout: defaultAcquireTimeout,
		PoolIdleTimeout:    defaultIdleTimeout,
		PoolReapInterval:   defaultReapInterval,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if v, err := strconv.Atoi(value); err == nil {
				*o = v
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if v, err := time.ParseDuration(value); err == nil {
				*o = v
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_PATH":        setString(&c.DatabasePath),
		"SECRET_KEY":           setString(&c.SecretKey),
		"REDIS_URL":            setString(&c.RedisURL),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"SIWE_DOMAIN":          setString(&c.SIWEDomain),
		"SIWE_URI":             setString(&c.SIWEURI),
		"CHAIN_ID":             setString(&c.ChainID),
		"POOL_MIN_CONNS":       setInt(&c.PoolMinConns),
		"POOL_MAX_CONNS":       setInt(&c.PoolMaxConns),
		"POOL_ACQUIRE_TIMEOUT": setDuration(&c.PoolAcquireTimeout),
		"POOL_IDLE_TIMEOUT":    setDuration(&c.PoolIdleTimeout),
		"POOL_REAP_INTERVAL":   setDuration(&c.PoolReapInterval),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("polkadot-sso", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabasePath, "database", "d", c.DatabasePath, "SQLite database path")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Token signing secret")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL (optional)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.SIWEDomain, "siwe-domain", c.SIWEDomain, "Domain presented in sign-in messages")
	fs.StringVar(&c.SIWEURI, "siwe-uri", c.SIWEURI, "URI presented in sign-in messages")
	fs.StringVar(&c.ChainID, "chain-id", c.ChainID, "Chain identifier presented in sign-in messages")
	fs.IntVar(&c.PoolMinConns, "pool-min", c.PoolMinConns, "Minimum pooled database connections")
	fs.IntVar(&c.PoolMaxConns, "pool-max", c.PoolMaxConns, "Maximum pooled database connections")
	fs.DurationVar(&c.PoolAcquireTimeout, "pool-acquire-timeout", c.PoolAcquireTimeout, "Wait limit for a pooled connection")
	fs.DurationVar(&c.PoolIdleTimeout, "pool-idle-timeout", c.PoolIdleTimeout, "Idle time before a pooled connection is closed")
	fs.DurationVar(&c.PoolReapInterval, "pool-reap-interval", c.PoolReapInterval, "How often idle connections are reclaimed")

	return fs.Parse(args)
}
