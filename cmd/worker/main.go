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
)

// cmd/worker is the out-of-process consumer half of the Redis dispatch
// transport. It only has queue traffic to drain when REDIS_URL is set; with
// no Redis configured, cmd/scheduler's in-process pool already executes
// every check itself and no separate worker fleet is needed. Still safe to
// start without Redis: it idles on ctx.Done().
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(context.Background(), "monitron-worker", "")
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

	if cfg.RedisURL == "" {
		slog.Default().WarnContext(ctx, "worker.no_redis_url_configured_idling")
	}

	pool, err := db.NewPool(cfg.DatabaseURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "worker.db_connect_failed", "err", err)
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

	healthAddr := os.Getenv("WORKER_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}
	healthSrv := health.NewServer(healthAddr, reg)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil {
			slog.Default().ErrorContext(ctx, "worker.health_server_failed", "err", err)
		}
	}()
	healthSrv.SetReady(true)

	slog.Default().InfoContext(ctx, "worker.start", "health_addr", healthAddr)

	if cfg.RedisURL != "" {
		runConsumer(ctx, cfg, exec)
	} else {
		<-ctx.Done()
	}

	healthSrv.SetReady(false)
	_ = healthSrv.Close()

	slog.Default().InfoContext(context.Background(), "worker.shutdown_complete")
}

func runConsumer(ctx context.Context, cfg config.Config, exec *executor.Executor) {
	rc, err := redisclient.NewFromURL(cfg.RedisURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "worker.redis_url_invalid", "err", err)
		<-ctx.Done()
		return
	}
	defer rc.Close()

	if err := rc.Ping(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "worker.redis_ping_failed", "err", err)
		<-ctx.Done()
		return
	}

	disp := dispatch.NewRedisDispatcher(rc.Raw(), "")
	if err := disp.Consume(ctx, exec.Run); err != nil && ctx.Err() == nil {
		slog.Default().ErrorContext(ctx, "worker.consume_failed", "err", err)
	}
}

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
