package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	ChannelBase          string
	JWTSecret            string
	StatsCacheTTL        time.Duration
	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration
	Weights              Weights
	Queue                QueueConfig
	NightlyCron          string
}

// Weights are the component weights used for the final teacher score.
type Weights struct {
	Student  float64
	Peer     float64
	DeptHead float64
}

// QueueConfig tunes the aggregation job queue and its worker.
type QueueConfig struct {
	Name         string
	MaxAttempts  int
	BackoffBase  time.Duration
	Concurrency  int
	RateLimit    int
	RateWindow   time.Duration
	PollInterval time.Duration
	FailedKeep   int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// DefaultWeights returns the 50/35/15 split applied when nothing is configured.
func DefaultWeights() Weights {
	return Weights{Student: 0.50, Peer: 0.35, DeptHead: 0.15}
}

// DefaultQueueConfig mirrors the production queue settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:         "aggregation",
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		Concurrency:  5,
		RateLimit:    10,
		RateWindow:   time.Second,
		PollInterval: 250 * time.Millisecond,
		FailedKeep:   1000,
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TEVAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	queueDefaults := DefaultQueueConfig()
	weightDefaults := DefaultWeights()

	v.SetDefault("app.name", "Teacher Evaluation API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "teval")
	v.SetDefault("stats.cache_ttl", "5m")
	v.SetDefault("submission.rate_limit", 20)
	v.SetDefault("submission.rate_window", "1m")
	v.SetDefault("weights.student", weightDefaults.Student)
	v.SetDefault("weights.peer", weightDefaults.Peer)
	v.SetDefault("weights.dept_head", weightDefaults.DeptHead)
	v.SetDefault("queue.name", queueDefaults.Name)
	v.SetDefault("queue.max_attempts", queueDefaults.MaxAttempts)
	v.SetDefault("queue.backoff_base", queueDefaults.BackoffBase.String())
	v.SetDefault("queue.concurrency", queueDefaults.Concurrency)
	v.SetDefault("queue.rate_limit", queueDefaults.RateLimit)
	v.SetDefault("queue.rate_window", queueDefaults.RateWindow.String())
	v.SetDefault("queue.poll_interval", queueDefaults.PollInterval.String())
	v.SetDefault("queue.failed_keep", queueDefaults.FailedKeep)
	v.SetDefault("nightly.cron", "0 2 * * *")

	cacheTTL, err := parseDuration(v, "stats.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "submission.rate_window")
	if err != nil {
		return Config{}, err
	}
	backoff, err := parseDuration(v, "queue.backoff_base")
	if err != nil {
		return Config{}, err
	}
	queueWindow, err := parseDuration(v, "queue.rate_window")
	if err != nil {
		return Config{}, err
	}
	poll, err := parseDuration(v, "queue.poll_interval")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		ChannelBase:          v.GetString("channel.base"),
		JWTSecret:            v.GetString("jwt.secret"),
		StatsCacheTTL:        cacheTTL,
		SubmissionRateLimit:  v.GetInt("submission.rate_limit"),
		SubmissionRateWindow: rateWindow,
		Weights: Weights{
			Student:  v.GetFloat64("weights.student"),
			Peer:     v.GetFloat64("weights.peer"),
			DeptHead: v.GetFloat64("weights.dept_head"),
		},
		Queue: QueueConfig{
			Name:         v.GetString("queue.name"),
			MaxAttempts:  v.GetInt("queue.max_attempts"),
			BackoffBase:  backoff,
			Concurrency:  v.GetInt("queue.concurrency"),
			RateLimit:    v.GetInt("queue.rate_limit"),
			RateWindow:   queueWindow,
			PollInterval: poll,
			FailedKeep:   v.GetInt64("queue.failed_keep"),
		},
		NightlyCron: v.GetString("nightly.cron"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if err := cfg.Weights.Validate(); err != nil {
		return Config{}, err
	}

	cfg.Queue = cfg.Queue.withDefaults()

	return cfg, nil
}

// Validate ensures the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if w.Student < 0 || w.Peer < 0 || w.DeptHead < 0 {
		return fmt.Errorf("score weights must not be negative")
	}
	if sum := w.Student + w.Peer + w.DeptHead; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %.4f", sum)
	}
	return nil
}

func (q QueueConfig) withDefaults() QueueConfig {
	defaults := DefaultQueueConfig()
	if strings.TrimSpace(q.Name) == "" {
		q.Name = defaults.Name
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = defaults.MaxAttempts
	}
	if q.BackoffBase <= 0 {
		q.BackoffBase = defaults.BackoffBase
	}
	if q.Concurrency <= 0 {
		q.Concurrency = defaults.Concurrency
	}
	if q.RateLimit <= 0 {
		q.RateLimit = defaults.RateLimit
	}
	if q.RateWindow <= 0 {
		q.RateWindow = defaults.RateWindow
	}
	if q.PollInterval <= 0 {
		q.PollInterval = defaults.PollInterval
	}
	if q.FailedKeep <= 0 {
		q.FailedKeep = defaults.FailedKeep
	}
	return q
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
