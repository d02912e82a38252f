package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API and worker processes.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	LogLevel            string
	DatabaseURL         string
	RedisURL            string
	RedisPoolSize       int
	RedisDialTimeout    time.Duration
	NATSURL             string
	AMQPURL             string
	AMQPExchange        string
	JWTSecret           string
	JWTRefreshSecret    string
	NotificationChannel string
	AnswerRateLimit     int
	PartialMultiCredit  bool
	Worker              WorkerConfig
}

// WorkerConfig controls the scheduled jobs.
type WorkerConfig struct {
	ExpiryInterval      time.Duration
	MaterializeInterval time.Duration
	ReminderInterval    time.Duration
	ReminderLead        time.Duration
	LockTTL             time.Duration
	BatchSize           int
	MetricsAddr         string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// RequireJWT fails when the token secrets needed by the HTTP API are missing.
func (c Config) RequireJWT() error {
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("jwt secrets must be provided")
	}
	return nil
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("notifications.channel", "gema:assessments")
	v.SetDefault("amqp.exchange", "gema.assessments")
	v.SetDefault("answers.rate_limit", 10)
	v.SetDefault("scoring.partial_multi", true)
	v.SetDefault("worker.expiry_interval", "5m")
	v.SetDefault("worker.materialize_interval", "30m")
	v.SetDefault("worker.reminder_interval", "5m")
	v.SetDefault("worker.reminder_lead", "15m")
	v.SetDefault("worker.lock_ttl", "10m")
	v.SetDefault("worker.batch_size", 200)
	v.SetDefault("worker.metrics_addr", ":9091")

	durations := map[string]*time.Duration{}
	worker := WorkerConfig{}
	durations["worker.expiry_interval"] = &worker.ExpiryInterval
	durations["worker.materialize_interval"] = &worker.MaterializeInterval
	durations["worker.reminder_interval"] = &worker.ReminderInterval
	durations["worker.reminder_lead"] = &worker.ReminderLead
	durations["worker.lock_ttl"] = &worker.LockTTL
	var redisDialTimeout time.Duration
	durations["redis.dial_timeout"] = &redisDialTimeout

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		*target = parsed
	}

	worker.BatchSize = v.GetInt("worker.batch_size")
	if worker.BatchSize <= 0 {
		worker.BatchSize = 200
	}
	worker.MetricsAddr = v.GetString("worker.metrics_addr")

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		LogLevel:            strings.ToLower(v.GetString("log.level")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		RedisPoolSize:       v.GetInt("redis.pool_size"),
		RedisDialTimeout:    redisDialTimeout,
		NATSURL:             v.GetString("nats.url"),
		AMQPURL:             v.GetString("amqp.url"),
		AMQPExchange:        v.GetString("amqp.exchange"),
		JWTSecret:           v.GetString("jwt.secret"),
		JWTRefreshSecret:    v.GetString("jwt.refresh_secret"),
		NotificationChannel: v.GetString("notifications.channel"),
		AnswerRateLimit:     v.GetInt("answers.rate_limit"),
		PartialMultiCredit:  v.GetBool("scoring.partial_multi"),
		Worker:              worker,
	}

	if cfg.AnswerRateLimit <= 0 {
		cfg.AnswerRateLimit = 10
	}

	return cfg, nil
}
