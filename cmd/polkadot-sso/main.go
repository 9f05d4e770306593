package main

import (
	"log"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/CoachCoe/polkadot-sso-sub002/adapters/cache"
	"github.com/CoachCoe/polkadot-sso-sub002/adapters/events"
	"github.com/CoachCoe/polkadot-sso-sub002/adapters/sqlite"
	"github.com/CoachCoe/polkadot-sso-sub002/adapters/wallet"
	"github.com/CoachCoe/polkadot-sso-sub002/internal/clock"
	"github.com/CoachCoe/polkadot-sso-sub002/ports"
	"github.com/CoachCoe/polkadot-sso-sub002/service"
	"github.com/CoachCoe/polkadot-sso-sub002/transport/http"
)

const auditRetention = 90 * 24 * time.Hour

func main() {
	cfg := NewConfig()
	if err := cfg.LoadDotEnv(os.Getwd); err != nil {
		log.Fatalf("Failed to read .env: %v", err)
	}
	cfg.LoadEnv(os.Getenv)
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	if cfg.SecretKey == "" {
		log.Fatal("SECRET_KEY is required")
	}

	logger, err := newLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	clk := clock.Real()

	pool, err := sqlite.Open(sqlite.PoolConfig{
		Path:           cfg.DatabasePath,
		MinConns:       cfg.PoolMinConns,
		MaxConns:       cfg.PoolMaxConns,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		IdleTimeout:    cfg.PoolIdleTimeout,
		ReapInterval:   cfg.PoolReapInterval,
		Logger:         logger.Named("pool"),
		Clock:          clk,
		OnConnect:      sqlite.ApplySchema,
	})
	if err != nil {
		logger.Fatal("opening database pool", zap.Error(err))
	}
	defer pool.Close() //nolint:errcheck

	// Redis backs both the cache and the audit event stream. Without
	// it the service runs self-contained on in-process equivalents.
	var (
		cacheStore ports.Cache
		publisher  message.Publisher
	)
	wmLogger := watermill.NewStdLogger(false, false)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("parsing redis URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		cacheStore = cache.NewRedisCache(redisClient)

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
		if err != nil {
			logger.Fatal("creating redis publisher", zap.Error(err))
		}
	} else {
		cacheStore = cache.NewMemoryCache()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}

	challengeStore := sqlite.NewChallengeStore(pool)
	sessionStore := sqlite.NewSessionStore(pool)
	codeStore := sqlite.NewAuthCodeStore(pool)
	auditStore := sqlite.NewAuditStore(pool)

	auditSvc := service.NewAuditService(auditStore, events.NewWatermillPublisher(publisher), clk, logger.Named("audit"))
	challengeSvc := service.NewChallengeService(
		challengeStore, codeStore, cacheStore, wallet.NewVerifier(),
		auditSvc, clk, logger.Named("challenge"),
		service.SIWEConfig{
			Domain:  cfg.SIWEDomain,
			URI:     cfg.SIWEURI,
			ChainID: cfg.ChainID,
		},
	)
	tokenSvc, err := service.NewTokenService(
		sessionStore, codeStore, cacheStore, auditSvc, clk, logger.Named("token"),
		service.TokenConfig{Secret: []byte(cfg.SecretKey)},
	)
	if err != nil {
		logger.Fatal("creating token service", zap.Error(err))
	}

	stopCleanup := challengeSvc.StartCleanup(time.Minute)
	defer stopCleanup()
	stopRetention := auditSvc.StartRetention(time.Hour, auditRetention)
	defer stopRetention()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := http.SetupRouter(challengeSvc, tokenSvc, auditSvc)

	logger.Info("starting server",
		zap.String("address", cfg.ListenAddr),
		zap.String("database", cfg.DatabasePath),
	)
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level, env string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
