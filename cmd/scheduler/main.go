package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/monitron/monitron/internal/alert"
	"github.com/monitron/monitron/internal/config"
	"github.com/monitron/monitron/internal/db"
	"github.com/monitron/monitron/internal/dispatch"
	"github.com/monitron/monitron/internal/executor"
	"github.com/monitron/monitron/internal/health"
	"github.com/monitron/monitron/internal/mailer"
	"github.com/monitron/monitron/internal/observability"
	"github.com/monitron/monitron/internal/probe"
	"github.com/monitron/monitron/internal/queue/redisclient"
	"github.com/monitron/monitron/internal/repo/postgres"
	"github.com/monitron/monitron/internal/scheduler"
)

// cmd/scheduler claims due monitors and runs the check pipeline, either
// in-process (default) or by handing ids to a Redis queue a separate
// cmd/worker fleet consumes when REDIS_URL is set.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(context.Background(), "monitron-scheduler", "")
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	pool, err := db.NewPool(cfg.DatabaseURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.db_connect_failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	monitorsRepo := postgres.NewMonitorsRepo(pool, prom)
	checksRepo := postgres.NewChecksRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)

	mail := buildMailer(cfg)

	alertEngine := alert.New(alert.Config{
		SustainedDownThreshold: cfg.SustainedDownThreshold,
		SustainedDownWindow:    time.Duration(cfg.SustainedDownWindowMinutes) * time.Minute,
		EmailFrom:              cfg.AlertEmailFrom,
	}, checksRepo, usersRepo, mail, prom)

	prober := probe.NewHTTPProber(cfg.UserAgent)

	exec := executor.New(
		executor.Config{JitterSeconds: cfg.JitterSeconds},
		pool, monitorsRepo, checksRepo, prober, nil, cfg.FailureRetryStages, alertEngine, prom,
	)

	disp := buildDispatcher(ctx, cfg)

	sched := scheduler.New(scheduler.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		PollInterval:   cfg.SchedulerPollInterval,
		ClaimTTL:       cfg.SchedulerClaimSeconds,
	}, monitorsRepo, disp, nil, prom, exec.Run)

	healthAddr := os.Getenv("SCHEDULER_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8080"
	}
	healthSrv := health.NewServer(healthAddr, reg)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil {
			slog.Default().ErrorContext(ctx, "scheduler.health_server_failed", "err", err)
		}
	}()
	healthSrv.SetReady(true)

	slog.Default().InfoContext(ctx, "scheduler.start",
		"health_addr", healthAddr,
		"max_concurrency", cfg.MaxConcurrency,
		"poll_interval", cfg.SchedulerPollInterval,
	)

	if err := sched.Run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.run_failed", "err", err)
	}

	healthSrv.SetReady(false)
	_ = healthSrv.Close()

	slog.Default().InfoContext(context.Background(), "scheduler.shutdown_complete")
}

// buildMailer wires CircuitBreaker(SMTPMailer) when SMTP is configured,
// falling back to LogMailer otherwise, so missing mailer config disables
// alerting without failing startup.
func buildMailer(cfg config.Config) mailer.Mailer {
	var inner mailer.Mailer
	if cfg.SMTPHost != "" {
		inner = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			UseTLS:    cfg.SMTPUseTLS,
			UseSSL:    cfg.SMTPUseSSL,
			Timeout:   cfg.SMTPTimeout,
			EmailFrom: cfg.AlertEmailFrom,
		})
	} else {
		inner = mailer.NewLogMailer()
	}

	return mailer.NewCircuitBreaker(inner, mailer.CircuitBreakerConfig{
		Timeout:          cfg.SMTPTimeout,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	})
}

// buildDispatcher picks the in-process pool (default) or the Redis producer
// side when REDIS_URL is set. Falls back to in-process dispatch when Redis
// is unreachable rather than refusing to start.
func buildDispatcher(ctx context.Context, cfg config.Config) dispatch.Dispatcher {
	if cfg.RedisURL == "" {
		return dispatch.NewInProcessPool(cfg.MaxConcurrency)
	}

	rc, err := redisclient.NewFromURL(cfg.RedisURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.redis_url_invalid", "err", err)
		return dispatch.NewInProcessPool(cfg.MaxConcurrency)
	}
	if err := rc.Ping(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.redis_ping_failed", "err", err)
		return dispatch.NewInProcessPool(cfg.MaxConcurrency)
	}

	return dispatch.NewRedisDispatcher(rc.Raw(), "")
}
