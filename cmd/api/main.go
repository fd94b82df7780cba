package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/config"
	"github.com/noah-isme/teacher-eval-api/internal/database"
	"github.com/noah-isme/teacher-eval-api/internal/handler"
	"github.com/noah-isme/teacher-eval-api/internal/jobs"
	"github.com/noah-isme/teacher-eval-api/internal/middleware"
	"github.com/noah-isme/teacher-eval-api/internal/observability"
	"github.com/noah-isme/teacher-eval-api/internal/repository"
	"github.com/noah-isme/teacher-eval-api/internal/router"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
	"github.com/noah-isme/teacher-eval-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn == nil {
		logger.Warn().Msg("nats url not configured, stats events and remote recompute requests are disabled")
	} else {
		defer natsConn.Close()
	}

	observability.RegisterMetrics()
	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluationRepo := repository.NewEvaluationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	userRepo := repository.NewUserRepository(db)
	windowRepo := repository.NewScheduleWindowRepository(db)
	peerRepo := repository.NewPeerAssignmentRepository(db)
	studentAssignmentRepo := repository.NewEvaluationAssignmentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	queue := jobs.NewQueue(redisClient, cfg.Queue, logger)

	auditService := service.NewAuditService(auditRepo, validate, logger)
	statsService := service.NewStatsService(statsRepo, scoring.Weights(cfg.Weights), redisClient, cfg.StatsCacheTTL, natsConn, cfg.ChannelBase, logger)
	aggregationService := service.NewAggregationService(evaluationRepo, userRepo, statsService, statsRepo, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, aggregationService, service.EvaluationSideEffects{
		PeerAssignments:       peerRepo,
		EvaluationAssignments: studentAssignmentRepo,
		Audit:                 auditService,
		Enqueuer:              queue,
	}, validate, logger)
	assignmentService := service.NewAssignmentService(peerRepo, studentAssignmentRepo, validate, logger)
	directoryService := service.NewDirectoryService(userRepo, windowRepo, validate, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := jobs.NewWorker(queue, aggregationService, auditService, cfg.Queue, logger)
	workerDone := make(chan error, 1)
	go func() {
		err := worker.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("aggregation worker stopped, shutting down")
			stop()
		}
		workerDone <- err
	}()

	scheduler := jobs.NewScheduler(windowRepo, userRepo, queue, cfg.NightlyCron, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start nightly scheduler")
	}

	bridge := jobs.NewBridge(natsConn, cfg.ChannelBase, queue, logger)
	if err := bridge.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe to recompute requests")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, logger),
		StatsHandler:      handler.NewStatsHandler(statsService, queue, queue, auditService, validate, logger),
		FormsHandler:      handler.NewFormsHandler(),
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		AdminHandler:      handler.NewAdminHandler(directoryService, auditService, logger),
		HealthChecks: map[string]handler.Pinger{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	shutdown(app, scheduler, workerDone, logger)
}

func shutdown(app *fiber.App, scheduler *jobs.Scheduler, workerDone <-chan error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		logger.Warn().Msg("nightly sweep still running at shutdown")
	}

	select {
	case <-workerDone:
	case <-ctx.Done():
		logger.Warn().Msg("aggregation worker did not stop in time")
	}

	logger.Info().Msg("server stopped")
}
