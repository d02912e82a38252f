package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, database.RedisOptions{PoolSize: cfg.RedisPoolSize, DialTimeout: cfg.RedisDialTimeout})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, events will use redis only")
		} else {
			defer natsConn.Drain()
		}
	}

	var eventOptions []service.SessionEventOption
	if cfg.AMQPURL != "" {
		broker, err := database.ConnectAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, session events will skip amqp")
		} else {
			defer broker.Close()
			eventOptions = append(eventOptions, service.WithAMQP(broker.Channel, broker.Exchange))
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assessmentRepo := repository.NewAssessmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	events := service.NewSessionEventPublisher(redisClient, natsConn, cfg.NotificationChannel, logger, eventOptions...)
	scorer := scoring.NewDefaultScorer(scoring.WithPartialMulti(cfg.PartialMultiCredit))
	lifecycle := service.NewSessionLifecycle(sessionRepo, answerRepo, questionRepo, scorer, events, logger)
	activityService := service.NewActivityService(activityRepo, logger)
	gradingService := service.NewGradingService(sessionRepo, assessmentRepo, answerRepo, lifecycle, service.NewGradingAccessGuard(), activityService, events, validate, logger)
	reassignmentService := service.NewReassignmentService(sessionRepo, assessmentRepo, answerRepo, activityService, events, logger)
	studentSessionService := service.NewStudentSessionService(assessmentRepo, questionRepo, lifecycle, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.NotificationChannel, natsConn, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler:      handler.NewSessionHandler(studentSessionService, logger),
		GradingHandler:      handler.NewGradingHandler(gradingService, reassignmentService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		DB:                  db,
		Redis:               redisClient,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Str("service", "api").Logger()
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
