// Package main is the entry point for the docgate API.
//
// In local mode it serves HTTP on the configured port with graceful shutdown
// on SIGINT/SIGTERM. Inside AWS Lambda it serves API Gateway v2 events
// through the httpadapter bridge and flushes buffered metrics after every
// invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/redis/go-redis/v9"

	"docgate/internal/activity"
	"docgate/internal/api/handlers"
	"docgate/internal/auth"
	"docgate/internal/billing"
	"docgate/internal/config"
	"docgate/internal/core"
	"docgate/internal/db"
	"docgate/internal/entitlement"
	"docgate/internal/external"
	"docgate/internal/guest"
	"docgate/internal/subscription"
	"docgate/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// infra holds the connections opened at startup. Optional clients are nil
// when their feature is disabled.
type infra struct {
	db         db.DBTX
	redis      redis.Cmdable
	s3         external.S3API
	sqs        activity.SQSSender
	cloudwatch core.CloudWatchAPI
}

// app is the wired gateway.
type app struct {
	server  *core.Server
	metrics *core.CloudWatchMetrics
	engine  *external.EngineClient
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.DefaultProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := config.NewLogger(cfg.LogLevel)
	logger.Info("docgate API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	inf := infra{db: pool}

	var redisClient *redis.Client
	if url := cfg.Redis.URL.Unmask(); url != "" {
		redisClient, err = core.ConnectRedis(ctx, url, cfg.Redis.ConnectWait)
		if err != nil {
			// Rate limiting fails open, so a missing Redis is degraded
			// service rather than an outage.
			logger.Warn("redis unavailable, rate limiting disabled", "error", err)
		} else {
			inf.redis = redisClient
		}
	}

	s3Client, err := external.NewS3Client(ctx, cfg.AWS.Region, cfg.AWS.S3Endpoint)
	if err != nil {
		return fmt.Errorf("creating s3 client: %w", err)
	}
	inf.s3 = s3Client

	if cfg.AWS.ActivityQueueURL != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		if cfg.AWS.ActivityQueueURL != "" {
			inf.sqs = sqs.NewFromConfig(awsCfg)
		}
		if cfg.Observability.EnableMetrics {
			inf.cloudwatch = cloudwatch.NewFromConfig(awsCfg)
		}
	}

	a, err := newApp(cfg, inf, logger)
	if err != nil {
		return err
	}
	srv := a.server

	srv.HealthChecks = append(srv.HealthChecks,
		core.Check("database", pool.Ping),
		core.Check("pdf_engine", a.engine.Ping),
	)
	if redisClient != nil {
		srv.HealthChecks = append(srv.HealthChecks, core.Check("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		srv.OnShutdown(redisClient.Close)
	}
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})
	if a.metrics != nil {
		srv.OnShutdown(func() error {
			return a.metrics.Flush(context.Background())
		})
	}

	if isLambdaEnvironment() {
		return runLambda(a, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// newApp builds every service on top of inf and mounts the routes.
func newApp(cfg *config.Config, inf infra, logger *slog.Logger) (*app, error) {
	clock := types.RealClock{}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	catalog, err := billing.NewCatalog(billing.DefaultLimits)
	if err != nil {
		return nil, fmt.Errorf("building plan catalog: %w", err)
	}

	users := db.NewUserRepository(inf.db)
	subs := db.NewSubscriptionRepository(inf.db, logger)
	usage := db.NewUsageRepository(inf.db)
	activityRepo := db.NewActivityRepository(inf.db)

	var metrics *core.CloudWatchMetrics
	if inf.cloudwatch != nil {
		metrics = core.NewCloudWatchMetrics(inf.cloudwatch, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = metrics
	}
	if inf.redis != nil {
		srv.RateLimitStore = core.NewRedisRateLimitStore(inf.redis)
	}

	security := auth.NewSecurityService(db.NewSecurityRepository(inf.db), auth.SecurityConfigFrom(cfg.Security), clock, logger)
	sessions := auth.NewSessionService(
		db.NewSessionRepository(inf.db),
		auth.NewCryptoTokenGenerator(),
		auth.SessionConfig{SessionDuration: cfg.Auth.SessionDuration},
		clock,
		logger,
	)
	srv.SecurityService = security
	srv.Sessions = sessions

	authSvc := auth.NewAuthService(auth.AuthServiceConfig{
		Users:    users,
		Sessions: sessions,
		Security: security,
		Hasher:   auth.BcryptHasher{},
		Clock:    clock,
		Logger:   logger,
	})

	tracker := guest.NewTracker(db.NewGuestSessionRepository(inf.db), guest.Limits{
		MaxRedactions: cfg.Guest.MaxRedactions,
		MaxMerges:     cfg.Guest.MaxMerges,
		TTL:           cfg.Guest.SessionTTL,
	}, logger)

	evaluator := entitlement.NewEvaluator(catalog, entitlement.Policy{
		Guest:         tracker.Limits(),
		GuestMaxBytes: cfg.Guest.MaxFileBytes,
		MaxFileBytes:  cfg.Engine.MaxFileBytes,
		PastDueGrace:  cfg.Entitlement.PastDueGrace,
	})
	svcCfg := entitlement.ServiceConfig{
		Evaluator:     evaluator,
		Subscriptions: subs,
		Usage:         usage,
		Guests:        tracker,
		Clock:         clock,
		Logger:        logger,
	}
	if metrics != nil {
		svcCfg.Recorder = metrics
	}
	entitlements := entitlement.NewService(svcCfg)

	stripeClient := external.NewStripeClient(&http.Client{Timeout: cfg.Billing.SyncTimeout}, users, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		PriceIDs:  cfg.Billing.PriceIDs(),
		Logger:    logger,
	})
	webhook := external.NewStripeWebhook(cfg.Billing.StripeWebhookSecret.Unmask(), cfg.Billing.PriceIDs())
	synchronizer := subscription.NewSynchronizer(subscription.Config{
		Store:        subs,
		Provider:     stripeClient,
		Catalog:      catalog,
		Clock:        clock,
		Logger:       logger,
		SyncTimeout:  cfg.Billing.SyncTimeout,
		PastDueGrace: cfg.Entitlement.PastDueGrace,
	})

	engine := external.NewEngineClient(cfg.Engine.BaseURL, cfg.Engine.Timeout)
	recorder := activity.NewRecorder(activityRepo, inf.sqs, cfg.AWS.ActivityQueueURL, clock, logger)
	reporter := billing.NewReporter(subs, usage, catalog, cfg.Entitlement.PastDueGrace, clock)

	cookies := handlers.DefaultCookieConfig()
	cookies.Secure = cfg.Auth.CookieSecure
	cookies.Domain = cfg.Auth.CookieDomain

	authHandler := handlers.NewAuthHandler(authSvc, cookies, srv.Validator, logger)
	guestHandler := handlers.NewGuestHandler(tracker, cookies, clock, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(synchronizer, stripeClient, cfg.Server.DashboardURL, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(webhook, synchronizer, logger)
	dashboardHandler := handlers.NewDashboardHandler(activityRepo, reporter)
	featureHandler := handlers.NewFeatureHandler(handlers.FeatureHandlerConfig{
		Entitlements: entitlements,
		Engine:       engine,
		Files:        external.NewS3Store(inf.s3, cfg.AWS.FilesBucket),
		Activity:     recorder,
		Cookies:      cookies,
		Validator:    srv.Validator,
		Clock:        clock,
		Logger:       logger,
	})

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		guestHandler.RegisterRoutes,
		subscriptionHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		dashboardHandler.RegisterRoutes,
		featureHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	return &app{server: srv, metrics: metrics, engine: engine}, nil
}

// isLambdaEnvironment reports whether the process runs inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves API Gateway v2 events. Lambda freezes the process
// between invocations, so buffered metrics are flushed before returning.
func runLambda(a *app, logger *slog.Logger) error {
	adapter := httpadapter.NewV2(a.server.Handler())
	lambda.Start(func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		if a.metrics != nil {
			if flushErr := a.metrics.Flush(ctx); flushErr != nil {
				logger.WarnContext(ctx, "metric flush failed", "error", flushErr)
			}
		}
		return resp, err
	})
	return nil
}

// runHTTPServer serves HTTP until SIGINT/SIGTERM, then drains in-flight
// requests for up to 10 seconds.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Engine.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
