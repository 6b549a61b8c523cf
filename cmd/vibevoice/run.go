package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/dnscache"

	"github.com/vibevoice/vibevoice/internal/app"
	"github.com/vibevoice/vibevoice/internal/cache"
	"github.com/vibevoice/vibevoice/internal/circuitbreaker"
	"github.com/vibevoice/vibevoice/internal/config"
	"github.com/vibevoice/vibevoice/internal/provider"
	"github.com/vibevoice/vibevoice/internal/provider/googletts"
	"github.com/vibevoice/vibevoice/internal/ratelimit"
	"github.com/vibevoice/vibevoice/internal/server"
	"github.com/vibevoice/vibevoice/internal/storage/sqlite"
	"github.com/vibevoice/vibevoice/internal/telemetry"
	"github.com/vibevoice/vibevoice/internal/worker"
)

// ttsScope is the OAuth scope for the Cloud Text-to-Speech API.
const ttsScope = "https://www.googleapis.com/auth/cloud-platform"

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting vibevoice", "version", version, "addr", cfg.Server.Addr)

	ctx := context.Background()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background()) //nolint:errcheck
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Cache + rate limiter share one Redis client when configured. A failed
	// ping is not fatal: both backends degrade per-operation, and Redis may
	// come back later.
	var (
		store   cache.Store
		limiter ratelimit.Limiter
		workers []worker.Worker
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		opts.DialTimeout = cfg.Redis.DialTimeout
		client := redis.NewClient(opts)
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable at startup, serving without cache until it recovers", "error", err)
		}
		cancel()

		store = cache.NewRedis(client, cfg.Redis.OpTimeout)
		limiter = ratelimit.NewRedis(client, cfg.RateLimit.PerMinute, cfg.RateLimit.Window, cfg.Redis.OpTimeout)
	} else {
		slog.Info("no redis configured, using in-process cache and rate limiting")
		mem, err := cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			return err
		}
		store = mem
		memLimiter := ratelimit.NewMemory(cfg.RateLimit.PerMinute, cfg.RateLimit.Window)
		limiter = memLimiter
		workers = append(workers, worker.NewLimiterJanitor(memLimiter, 5*time.Minute))
	}

	// Provider HTTP client with cached DNS and Google auth.
	resolver := &dnscache.Resolver{}
	var rt http.RoundTripper = provider.NewTransport(resolver)
	if cfg.Provider.APIKey != "" {
		rt = &provider.APIKeyTransport{
			Key:        cfg.Provider.APIKey,
			HeaderName: "X-Goog-Api-Key",
			Base:       rt,
		}
	} else {
		oauthRT, err := provider.NewGCPOAuthTransport(ctx, rt, ttsScope)
		if err != nil {
			return err
		}
		rt = oauthRT
	}
	httpClient := &http.Client{Transport: rt, Timeout: cfg.Provider.Timeout}
	synth := googletts.New(cfg.Provider.BaseURL, httpClient)

	svc := app.NewSynthesisService(synth, store, limiter, cfg.Cache.TTL, metrics)
	svc.UseBreaker(circuitbreaker.NewBreaker(circuitbreaker.DefaultConfig()))

	// Usage audit log
	var (
		usage    server.UsageRecorder
		usageLog server.UsageQuerier
	)
	if cfg.Database.DSN != "" {
		db, err := sqlite.New(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		recorder := worker.NewUsageRecorder(db, metrics)
		workers = append(workers, recorder, worker.NewUsagePruner(db, cfg.Database.Retention, time.Hour))
		usage = recorder
		usageLog = db
	}

	var corsOrigins []string
	if cfg.CORS.Enabled {
		corsOrigins = cfg.CORS.Origins
		if len(corsOrigins) == 0 {
			corsOrigins = []string{"*"}
		}
	}

	handler := server.New(server.Deps{
		Synthesis:      svc,
		Store:          store,
		Provider:       synth,
		Usage:          usage,
		UsageLog:       usageLog,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		MaxTextLength:  cfg.Server.MaxTextLength,
		TrustProxy:     cfg.Server.TrustProxy,
		RateLimit:      cfg.RateLimit.PerMinute,
		RetryAfter:     cfg.RateLimit.Window,
		CORSOrigins:    corsOrigins,
		Version:        version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.NewRunner(workers...).Run(workerCtx)
	}()

	// Periodic DNS cache refresh; stale entries are re-resolved eagerly so a
	// provider IP change does not linger for the TTL of the pool.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-workerCtx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("vibevoice ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		stopWorkers()
		<-workerDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Stop workers last so the usage recorder drains in-flight records.
	stopWorkers()
	<-workerDone

	slog.Info("vibevoice stopped")
	return nil
}
