package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/api"
	"github.com/ayo6706/delivery-marketplace/internal/api/middleware"
	"github.com/ayo6706/delivery-marketplace/internal/config"
	"github.com/ayo6706/delivery-marketplace/internal/db"
	"github.com/ayo6706/delivery-marketplace/internal/gateway"
	"github.com/ayo6706/delivery-marketplace/internal/idempotency"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/ayo6706/delivery-marketplace/internal/service"
	"github.com/ayo6706/delivery-marketplace/internal/storage"
	"github.com/ayo6706/delivery-marketplace/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.ConfigureTokens(middleware.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// cache stays a nil interface when Redis is not configured.
	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
	} else {
		logger.Warn("REDIS_URL not set; idempotency and handoff attempts use Postgres and process memory only")
	}

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyTimeout)
	defer dispatcher.Wait()

	files, err := newObjectStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	var limiter service.AttemptLimiter
	if cache != nil {
		limiter = service.NewRedisAttemptLimiter(cache, cfg.CodeMaxAttempts, cfg.CodeAttemptWindow)
	} else {
		limiter = service.NewMemoryAttemptLimiter(cfg.CodeMaxAttempts, cfg.CodeAttemptWindow)
	}

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(cache, store.Raw(), cfg.IdempotencyTTL, logger)

	ledger := service.NewLedgerService(store)
	escrow := service.NewEscrowService(store, ledger, cfg.CommissionRate, dispatcher)
	withdrawals := service.NewWithdrawalService(store, ledger, gateway.NewMockRail(), cache, service.WithdrawalConfig{
		MinAmountMicros:   cfg.MinWithdrawalMicros,
		StatsCacheTTL:     cfg.StatsCacheTTL,
		PayoutMaxAttempts: cfg.PayoutMaxAttempts,
	}, dispatcher)
	reconciliation := service.NewReconciliationService(store)
	services := api.Services{
		Users:          service.NewUserService(store, ledger, cfg.Currency),
		Announcements:  service.NewAnnouncementService(store, cfg.Currency),
		Matching:       service.NewMatchingService(store, escrow, dispatcher),
		Handoff:        service.NewHandoffService(store, escrow, limiter, dispatcher),
		Escrow:         escrow,
		Ledger:         ledger,
		Withdrawals:    withdrawals,
		Documents:      service.NewDocumentService(store, files, dispatcher),
		Reconciliation: reconciliation,
	}

	if cfg.AdminUsername != "" {
		admin, created, err := services.Users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("user_id", admin.ID.String()), zap.String("username", admin.Username))
		}
	}

	payoutWorker := worker.NewPayoutWorker(withdrawals).
		WithPollInterval(cfg.PayoutPollInterval).
		WithBatchSize(cfg.PayoutBatchSize)
	reconciliationWorker := worker.NewReconciliationWorker(reconciliation).
		WithInterval(cfg.ReconciliationInterval)

	router := api.NewRouter(cfg, logger, store, idemStore, cache, services)
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		payoutWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		reconciliationWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		payoutWorker.Stop()
		reconciliationWorker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// Migrate applies the embedded schema migrations and returns.
func Migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(logger), func() {}
	}
	kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotifyTopic)
	logger.Info("kafka notifier enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaNotifyTopic))
	return kn, func() {
		if err := kn.Close(); err != nil {
			logger.Warn("kafka notifier close failed", zap.Error(err))
		}
	}
}

func newObjectStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.ObjectStorage, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("STORAGE_BUCKET not set; documents are kept in process memory")
		return storage.NewMemoryStorage(), nil
	}
	s3, err := storage.NewS3ObjectStorage(ctx, cfg.Storage,
		storage.WithLogger(logger),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}
