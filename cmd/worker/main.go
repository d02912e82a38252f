package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/worker"
)

const usage = `usage: worker <command> [--dry-run]

commands:
  expire       force-submit sessions whose time ran out
  materialize  create sessions for enrolled students who never opened an ended assessment
  remind       notify students of supervised assessments starting soon
  schedule     run all jobs on their configured intervals until interrupted`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	command := args[0]
	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	dryRun := flags.Bool("dry-run", false, "compute and report without writing")
	if err := flags.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	parsed, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		parsed = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("session store unavailable")
		return 1
	}
	defer deps.close()

	jobs := buildJobs(cfg, deps, logger)
	opts := worker.RunOptions{DryRun: *dryRun}

	switch command {
	case "expire":
		return runOnce(ctx, jobs.expiry, deps.locker, cfg, opts, logger)
	case "materialize":
		return runOnce(ctx, jobs.materializer, deps.locker, cfg, opts, logger)
	case "remind":
		return runOnce(ctx, jobs.reminders, deps.locker, cfg, opts, logger)
	case "schedule":
		return schedule(ctx, jobs, deps.locker, cfg, opts, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", command, usage)
		return 2
	}
}

type dependencies struct {
	repos struct {
		assessments   repository.AssessmentRepository
		sessions      repository.SessionRepository
		answers       repository.AnswerRepository
		questions     repository.QuestionRepository
		enrollments   repository.EnrollmentRepository
		notifications repository.NotificationRepository
	}
	redis  *redis.Client
	nats   *nats.Conn
	amqp   *database.AMQPBroker
	locker worker.Locker
	close  func()
}

func connect(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*dependencies, error) {
	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	deps := &dependencies{}
	closers := []func(){}
	deps.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		closers = append(closers, func() { _ = sqlDB.Close() })
	}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL, database.RedisOptions{PoolSize: cfg.RedisPoolSize, DialTimeout: cfg.RedisDialTimeout})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running without run locks")
		} else {
			deps.redis = client
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-worker")
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, events will use redis only")
		} else {
			deps.nats = conn
			closers = append(closers, func() { _ = conn.Drain() })
		}
	}

	if cfg.AMQPURL != "" {
		broker, err := database.ConnectAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn().Err(err).Msg("rabbitmq unavailable, session events will skip amqp")
		} else {
			deps.amqp = broker
			closers = append(closers, func() { _ = broker.Close() })
		}
	}

	deps.repos.assessments = repository.NewAssessmentRepository(db)
	deps.repos.sessions = repository.NewSessionRepository(db)
	deps.repos.answers = repository.NewAnswerRepository(db)
	deps.repos.questions = repository.NewQuestionRepository(db)
	deps.repos.enrollments = repository.NewEnrollmentRepository(db)
	deps.repos.notifications = repository.NewNotificationRepository(db)
	deps.locker = worker.NewRedisLocker(deps.redis, "")

	return deps, nil
}

type jobSet struct {
	expiry       worker.Job
	materializer worker.Job
	reminders    worker.Job
}

func buildJobs(cfg config.Config, deps *dependencies, logger zerolog.Logger) jobSet {
	var eventOptions []service.SessionEventOption
	if deps.amqp != nil {
		eventOptions = append(eventOptions, service.WithAMQP(deps.amqp.Channel, deps.amqp.Exchange))
	}
	events := service.NewSessionEventPublisher(deps.redis, deps.nats, cfg.NotificationChannel, logger, eventOptions...)
	scorer := scoring.NewDefaultScorer(scoring.WithPartialMulti(cfg.PartialMultiCredit))
	lifecycle := service.NewSessionLifecycle(deps.repos.sessions, deps.repos.answers, deps.repos.questions, scorer, events, logger)
	notifications := service.NewNotificationService(deps.repos.notifications, deps.redis, cfg.NotificationChannel, deps.nats, validator.New(validator.WithRequiredStructEnabled()), logger)

	return jobSet{
		expiry:       worker.NewExpirySweeper(deps.repos.sessions, deps.repos.assessments, lifecycle, cfg.Worker.BatchSize, logger),
		materializer: worker.NewMaterializer(deps.repos.assessments, deps.repos.enrollments, deps.repos.sessions, cfg.Worker.BatchSize, logger),
		reminders:    worker.NewReminderDispatcher(deps.repos.assessments, deps.repos.enrollments, notifications, cfg.Worker.ReminderLead, logger),
	}
}

func runOnce(ctx context.Context, job worker.Job, locker worker.Locker, cfg config.Config, opts worker.RunOptions, logger zerolog.Logger) int {
	runID := uuid.NewString()
	ctx = middleware.ContextWithCorrelation(ctx, runID)
	runLogger := middleware.LoggerWithCorrelation(ctx, logger)

	report, err := worker.RunLocked(ctx, job, locker, cfg.Worker.LockTTL, opts, runLogger)

	if summary, marshalErr := json.Marshal(report); marshalErr == nil {
		fmt.Println(string(summary))
	}

	if err != nil {
		runLogger.Error().Err(err).Str("worker", job.Name()).Msg("worker run failed")
		if errors.Is(err, worker.ErrStoreUnavailable) {
			return 1
		}
	}
	return 0
}

func schedule(ctx context.Context, jobs jobSet, locker worker.Locker, cfg config.Config, opts worker.RunOptions, logger zerolog.Logger) int {
	metricsServer := observability.NewMetricsServer(cfg.Worker.MetricsAddr)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	scheduler := worker.NewScheduler([]worker.Schedule{
		{Job: jobs.expiry, Interval: cfg.Worker.ExpiryInterval},
		{Job: jobs.materializer, Interval: cfg.Worker.MaterializeInterval},
		{Job: jobs.reminders, Interval: cfg.Worker.ReminderInterval},
	}, locker, cfg.Worker.LockTTL, opts, logger)

	logger.Info().Bool("dry_run", opts.DryRun).Msg("scheduler started")
	scheduler.Run(ctx)
	return 0
}
