package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/monitron/monitron/internal/backoff"
)

// Config holds every process-wide setting, loaded once at startup and
// treated as immutable for the process lifetime. A restart is the supported
// way to change configuration.
type Config struct {
	Env  string
	Port int

	DatabaseURL string
	RedisURL    string

	MaxConcurrency        int
	JitterSeconds         float64
	SchedulerPollInterval time.Duration
	SchedulerClaimSeconds time.Duration
	UserAgent             string

	FailureRetryStages backoff.Policy

	SustainedDownThreshold     int
	SustainedDownWindowMinutes int

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPUseTLS     bool
	SMTPUseSSL     bool
	SMTPTimeout    time.Duration
	AlertEmailFrom string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)

	cfg := Config{
		Env:  env,
		Port: port,

		DatabaseURL: getEnv("DATABASE_URL", buildDBURL()),
		RedisURL:    getEnv("REDIS_URL", ""),

		MaxConcurrency:        getEnvInt("MAX_CONCURRENCY", 5),
		JitterSeconds:         getEnvFloat("JITTER_SECONDS", 0.2),
		SchedulerPollInterval: time.Duration(getEnvInt("SCHEDULER_POLL_INTERVAL", 1)) * time.Second,
		SchedulerClaimSeconds: time.Duration(getEnvInt("SCHEDULER_CLAIM_SECONDS", 30)) * time.Second,
		UserAgent:             getEnv("USER_AGENT", "monitron/1.0"),

		FailureRetryStages: parseStages(getEnv("FAILURE_RETRY_STAGES", "2:30,5:60,12:120,0:300")),

		SustainedDownThreshold:     getEnvInt("SUSTAINED_DOWN_THRESHOLD", 10),
		SustainedDownWindowMinutes: getEnvInt("SUSTAINED_DOWN_WINDOW_MINUTES", 60),

		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvInt("SMTP_PORT", 587),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:     getEnvBool("SMTP_USE_TLS", true),
		SMTPUseSSL:     getEnvBool("SMTP_USE_SSL", false),
		SMTPTimeout:    time.Duration(getEnvInt("SMTP_TIMEOUT", 10)) * time.Second,
		AlertEmailFrom: getEnv("ALERT_EMAIL_FROM", ""),
	}

	cfg.warnIfClaimTTLUnsafe()

	return cfg
}

// warnIfClaimTTLUnsafe: the claim lease should exceed the longest monitor
// timeout plus a safety margin, or a claim can expire while its probe is
// still in flight and a second scheduler could re-claim the monitor. The
// process cannot fully verify this (per-monitor timeouts live in the
// database), so it warns against the schema ceiling, never fails.
func (c Config) warnIfClaimTTLUnsafe() {
	const maxMonitorTimeout = 60 * time.Second
	const safetyMargin = 5 * time.Second

	if c.SchedulerClaimSeconds < maxMonitorTimeout+safetyMargin {
		slog.Default().Warn("config.claim_ttl_may_be_unsafe",
			"scheduler_claim_seconds", c.SchedulerClaimSeconds,
			"max_possible_monitor_timeout_seconds", maxMonitorTimeout,
		)
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "monitron")
	pass := getEnv("DB_PASSWORD", "monitron")
	name := getEnv("DB_NAME", "monitron")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// parseStages parses the "attempts:interval_seconds,..." form, e.g.
// "2:30,5:60,12:120,0:300"; an attempts value of 0 marks the unbounded
// terminal stage. Falls back to backoff.DefaultPolicy() on any parse error,
// logged, since a malformed env var should not crash startup.
func parseStages(raw string) backoff.Policy {
	fallback := backoff.DefaultPolicy()

	parts := strings.Split(raw, ",")
	stages := make([]backoff.Stage, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			slog.Default().Warn("config.invalid_failure_retry_stage", "stage", part)
			return fallback
		}
		attempts, err := strconv.Atoi(fields[0])
		if err != nil {
			slog.Default().Warn("config.invalid_failure_retry_stage", "stage", part, "err", err)
			return fallback
		}
		seconds, err := strconv.Atoi(fields[1])
		if err != nil {
			slog.Default().Warn("config.invalid_failure_retry_stage", "stage", part, "err", err)
			return fallback
		}
		stages = append(stages, backoff.Stage{Attempts: attempts, Interval: time.Duration(seconds) * time.Second})
	}

	if len(stages) == 0 {
		return fallback
	}
	return backoff.Policy{Stages: stages}
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.ParseFloat(v, 64)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return b
	}
	return fallback
}
