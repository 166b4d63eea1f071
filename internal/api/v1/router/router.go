package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/pdf"
	"app/internal/pubsub"
	"app/internal/ratelimit"
	"app/internal/repository"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the full HTTP surface: database pool, S3 client, rate-limit
// store, services, and handlers. The returned OperationService is exposed so
// main can run the stale-operation sweeper alongside the server.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, service.OperationService, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// 1. Open DB connection pool
	dsn := cfg.DBConnectionString
	// Local databases usually run without TLS; production connection strings
	// carry their own sslmode.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize S3 client for processed outputs
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load S3 config")
		return nil, nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	// 3. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Rate-limit store: shared Redis when configured, otherwise per-process
	// memory counters.
	var store ratelimit.Store
	if cfg.RedisURL != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.RedisURL, "ratelimit")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Redis rate-limit store")
			return nil, nil, nil, err
		}
		if err := redisStore.Ping(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to ping Redis")
			return nil, nil, nil, err
		}
		logger.Info().Msg("Using Redis rate-limit store")
		store = redisStore
	} else {
		memStore := ratelimit.NewMemoryStore()
		memStore.StartSweeper(ctx, time.Minute)
		logger.Warn().Msg("REDIS_URL not set; rate limits are per-process only")
		store = memStore
	}
	pools := ratelimit.NewPools(store, middleware.UserOrIP)

	// 5. Optional Pub/Sub publisher for operation lifecycle events
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" && cfg.OperationEventTopic != "" {
		pubSubPublisher, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, nil, err
		}
		publisher = pubSubPublisher
	}

	// 6. Initialize repositories, services and handlers
	userRepo := repository.NewUserRepo(pool)
	opRepo := repository.NewOperationRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)

	processor := pdf.NewServiceClient(cfg.PDFServiceBaseURL, time.Duration(cfg.PDFRequestTimeoutSec)*time.Second, logger)

	userSvc := service.NewUserService(userRepo)
	subSvc := service.NewSubscriptionService(subRepo, logger)
	usageSvc := service.NewUsageService(opRepo, subRepo, cfg.FreeDailyOperations, logger)
	opSvc := service.NewOperationService(usageSvc, processor, opRepo, s3Client, cfg.S3Bucket, publisher, cfg.OperationEventTopic, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, subSvc, logger)

	userHandler := handler.NewUserHandler(userSvc, validate)
	operationHandler := handler.NewOperationHandler(opSvc, usageSvc, logger)
	usageHandler := handler.NewUsageHandler(usageSvc, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, validate, logger)

	// 7. Middleware chains per traffic class
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	pdfLimit := middleware.RateLimit(pools.PDF)
	paymentLimit := middleware.RateLimit(pools.Payment)
	lenientLimit := middleware.RateLimit(pools.Lenient)
	moderateLimit := middleware.RateLimit(pools.Moderate)

	// 8. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware, moderateLimit)
	operationHandler.RegisterRoutes(apiV1Mux, authMiddleware, pdfLimit, lenientLimit)
	usageHandler.RegisterRoutes(apiV1Mux, authMiddleware, lenientLimit)
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware, paymentLimit, moderateLimit)

	// Stripe signs its own requests; no auth or rate limiting on the webhook.
	apiV1Mux.HandleFunc("/webhooks/stripe", stripeSvc.HandleWebhook)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	// 9. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, opSvc, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
