package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/approval"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/events"
	"frameworks/herald/internal/handlers"
	"frameworks/herald/internal/modesync"
	"frameworks/herald/internal/store/memory"
	"frameworks/herald/internal/store/postgres"
	"frameworks/herald/pkg/auth"
	"frameworks/herald/pkg/config"
	"frameworks/herald/pkg/database"
	"frameworks/herald/pkg/kafka"
	"frameworks/herald/pkg/logging"
	"frameworks/herald/pkg/monitoring"
	"frameworks/herald/pkg/redis"
	"frameworks/herald/pkg/server"
	"frameworks/herald/pkg/version"
)

// stores is satisfied by both the postgres and memory implementations.
type stores interface {
	approval.Store
	controls.Store
	audit.Store
	analytics.Store
}

func main() {
	logger := logging.NewLoggerWithService("herald")
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting herald")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtSecret := config.RequireEnv("JWT_SECRET")
	defaultMode, err := controls.ParseMode(config.GetEnv("DEFAULT_SYSTEM_MODE", string(controls.ModeNormal)))
	if err != nil {
		logger.WithError(err).Fatal("Invalid DEFAULT_SYSTEM_MODE")
	}

	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"JWT_SECRET": jwtSecret,
	}))

	var st stores
	if dbURL := config.GetEnv("DATABASE_URL", ""); dbURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = dbURL
		db, err := database.Connect(ctx, dbCfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer closeDB(db, logger)
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply schema")
		}
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
		st = postgres.NewStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		st = memory.New()
	}

	group, gctx := errgroup.WithContext(ctx)

	var sinks []audit.Sink
	if brokers := config.GetEnvList("KAFKA_BROKERS"); len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, "herald", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer))

		messages, duration := metricsCollector.CreateKafkaMetrics()
		sink := events.NewAuditSink(producer, config.GetEnv("KAFKA_AUDIT_TOPIC", "herald_audit"), "herald", logger,
			events.WithMetrics(events.Metrics{Messages: messages, Duration: duration}))
		sinks = append(sinks, sink)
		group.Go(func() error { return sink.Run(gctx) })
	}
	auditLog := audit.NewLog(st, logger, sinks...)

	controlOpts := []controls.Option{
		controls.WithLogger(logger),
		controls.WithForwarder(auditLog),
		controls.WithDefaultMode(defaultMode),
		controls.WithMetrics(&controls.Metrics{
			ModeChanges: metricsCollector.NewCounter("mode_changes_total", "System mode changes", []string{"action"}),
			SystemMode:  metricsCollector.NewGauge("system_mode", "Active system mode (1 = active)", []string{"mode"}),
			Cancelled:   metricsCollector.NewCounter("crisis_cancellations_total", "Scheduled items handled by crisis sweeps", []string{"result"}),
		}),
	}

	var (
		redisClient goredis.UniversalClient
		syncer      *modesync.Syncer
	)
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		redisClient, err = redis.NewClientFromURL(ctx, redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
		syncer = modesync.New(redisClient, config.GetEnv("MODE_SYNC_CHANNEL", modesync.DefaultChannel), logger)
		controlOpts = append(controlOpts, controls.WithNotifier(syncer))
	}

	controller := controls.New(st, controlOpts...)
	if err := controller.Init(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to initialise system mode")
	}

	engine := approval.NewEngine(st, controller, auditLog,
		approval.WithLogger(logger),
		approval.WithMetrics(&approval.Metrics{
			Transitions: metricsCollector.NewCounter("transitions_total", "Content operations by outcome", []string{"action", "result"}),
		}),
	)
	controller.SetCanceller(engine)

	if syncer != nil {
		group.Go(func() error {
			err := syncer.Run(gctx, controller, nil)
			if err != nil {
				logger.WithError(err).Error("Mode sync stopped")
			}
			return err
		})
	}

	app := server.SetupServiceRouter(logger, "herald", healthChecker, metricsCollector)
	api := app.Group("/api/v1", auth.JWTAuthMiddleware([]byte(jwtSecret)))
	handlers.Register(api,
		handlers.NewContentHandler(engine, logger),
		handlers.NewControlHandler(controller, logger),
		handlers.NewAuditHandler(auditLog, logger),
		handlers.NewAnalyticsHandler(analytics.NewService(st), logger),
	)

	serverConfig := server.DefaultConfig("herald", "18040")
	group.Go(func() error { return server.Run(gctx, serverConfig, app, logger) })

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("Herald stopped with error")
	}
	logger.Info("Herald stopped")
}

func closeDB(db *sql.DB, logger logging.Logger) {
	if err := db.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close database")
	}
}
