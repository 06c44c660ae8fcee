package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/config"
	"github.com/noah-isme/judging-integrity-api/internal/database"
	"github.com/noah-isme/judging-integrity-api/internal/handler"
	"github.com/noah-isme/judging-integrity-api/internal/middleware"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
	"github.com/noah-isme/judging-integrity-api/internal/router"
	"github.com/noah-isme/judging-integrity-api/internal/service"
	cloud "github.com/noah-isme/judging-integrity-api/pkg/cloudinary"
	"github.com/noah-isme/judging-integrity-api/pkg/contentstore"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to access database pool")
	}
	defer sqlDB.Close()

	probes := map[string]handler.HealthProbe{"database": sqlDB.PingContext}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	nodeID := uuid.NewString()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, fmt.Sprintf("%s/%s", cfg.AppName, nodeID), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	store, err := buildContentStore(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure content store")
	}
	var fetcher contentstore.Fetcher = store
	if cfg.ContentGatewayURL != "" {
		fetcher = contentstore.Fallback{store, contentstore.NewGateway(cfg.ContentGatewayURL, cfg.ContentFetchTimeout)}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluationRepo := repository.NewEvaluationRepository(db)
	hackathonRepo := repository.NewHackathonRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)

	// One broker carries cross-node fan-out; NATS wins when both are configured.
	channels := service.NewNotificationChannels(nodeID, cfg.NotificationChannel)
	sinks := []service.NotificationSink{service.NewLogNotificationSink(logger)}
	var notificationService service.NotificationService
	switch {
	case natsConn != nil:
		notificationService = service.NewNotificationService(notificationRepo, nil, natsConn, channels, logger)
		sinks = append(sinks, service.NewNATSNotificationSink(natsConn, channels))
	case redisClient != nil:
		notificationService = service.NewNotificationService(notificationRepo, redisClient, nil, channels, logger)
		sinks = append(sinks, service.NewRedisNotificationSink(redisClient, channels))
	default:
		notificationService = service.NewNotificationService(notificationRepo, nil, nil, channels, logger)
	}
	sinks = append(sinks, notificationService)

	dispatcher := service.NewNotificationDispatcher(notificationRepo, sinks, service.DispatcherConfig{
		Interval:    cfg.NotificationDispatchInterval,
		BatchSize:   cfg.NotificationBatchSize,
		MaxAttempts: cfg.NotificationMaxAttempts,
		ClaimTTL:    cfg.NotificationClaimTTL,
	}, logger)

	primitive, err := service.NewSignaturePrimitive(cfg.SignatureScheme)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure signature scheme")
	}
	contentVerifier, err := service.NewContentVerifier(fetcher, cfg.ContentFetchTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure content verifier")
	}

	lockService := service.NewLockService(evaluationRepo, validate, activityService, dispatcher, logger)
	verificationService := service.NewVerificationService(
		hackathonRepo,
		scoreRepo,
		contentVerifier,
		service.NewSignatureChecker(primitive),
		service.VerificationConfig{
			Concurrency:        cfg.VerificationConcurrency,
			TimestampTolerance: cfg.VerificationTimestampTolerance,
		},
		logger,
	)
	scoreService := service.NewScoreService(scoreRepo, hackathonRepo, evaluationRepo, store, validate, activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  15 * time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		LockHandler:         handler.NewLockHandler(lockService, logger),
		VerificationHandler: handler.NewVerificationHandler(verificationService, logger),
		ScoreHandler:        handler.NewScoreHandler(scoreService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.NotificationKeepAlive),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		HealthProbes:        probes,
		JWTMiddleware: middleware.JWTProtected(middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   30 * time.Second,
		}),
	})

	notificationService.Start(ctx)
	dispatcher.Start(ctx)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("node_id", nodeID).Msg("judging api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(app, logger)
}

func buildContentStore(cfg config.Config, redisClient *redis.Client, logger zerolog.Logger) (contentstore.Store, error) {
	var store contentstore.Store
	switch cfg.ContentDriver {
	case config.ContentDriverRedis:
		return contentstore.NewRedis(redisClient, "judging:content", 0), nil
	case config.ContentDriverCloudinary:
		uploader, err := cloud.New(cloud.Config{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			Folder:       cfg.CloudinaryUploadFolder,
			FetchTimeout: cfg.ContentFetchTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = uploader
	default:
		logger.Warn().Msg("using in-memory content store; published score documents are lost on restart")
		store = contentstore.NewMemory()
	}

	if redisClient != nil {
		store = contentstore.NewCached(store, redisClient, cfg.ContentCacheTTL, logger)
	}
	return store, nil
}

func shutdown(app *fiber.App, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
