package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/kvasilopoulos/contact-center/internal/api"
	"github.com/kvasilopoulos/contact-center/internal/breaker"
	"github.com/kvasilopoulos/contact-center/internal/classifier"
	"github.com/kvasilopoulos/contact-center/internal/config"
	"github.com/kvasilopoulos/contact-center/internal/feedback"
	"github.com/kvasilopoulos/contact-center/internal/llm/provider"
	"github.com/kvasilopoulos/contact-center/internal/pii"
	"github.com/kvasilopoulos/contact-center/internal/policy"
	"github.com/kvasilopoulos/contact-center/internal/probe"
	"github.com/kvasilopoulos/contact-center/internal/prompts"
	"github.com/kvasilopoulos/contact-center/internal/ratelimit"
	"github.com/kvasilopoulos/contact-center/internal/telemetry"
	"github.com/kvasilopoulos/contact-center/internal/workflow"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/router.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(promReg)

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (shared rate limits and feedback cache disabled)", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			logger.Info("redis connected")
			defer rdb.Close()
		}
	}

	health := probe.New(logger)
	breakers := breaker.NewGroup(breaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.CircuitBreaker.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
	}, breaker.WithStateChange(func(name string, from, to breaker.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		metrics.SetCircuitState(name, int(to))
		health.OnBreakerChange(name, from, to)
	}))

	// Backends
	backends := provider.BuildFromConfig(cfg)
	primary, err := backends.Primary()
	if err != nil {
		logger.Error("no classification backend", "backend", cfg.Classification.Backend, "error", err)
		os.Exit(1)
	}
	if !backends.PrimaryConfigured() {
		logger.Warn("classification backend has no credentials, requests will fail", "backend", primary.Name())
	}

	// Prompts
	registry := prompts.NewRegistry(prompts.WithLogger(logger))
	res, err := prompts.LoadDir(registry, cfg.Prompts.Dir, logger)
	if err != nil {
		logger.Error("failed to load prompts", "dir", cfg.Prompts.Dir, "error", err)
		os.Exit(1)
	}
	if res.Templates == 0 {
		logger.Error("no prompt templates found", "dir", cfg.Prompts.Dir)
		os.Exit(1)
	}
	for _, err := range prompts.CheckExperiments(registry, cfg.Classification.PromptID) {
		logger.Warn("experiment references unknown prompt version", "error", err)
	}
	if cfg.Prompts.Watch {
		watcher := prompts.NewWatcher(cfg.Prompts.Dir, registry, logger)
		watcher.OnReload(func(r prompts.LoadResult) {
			logger.Info("prompts reloaded", "templates", r.Templates, "experiments", r.Experiments)
		})
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Warn("prompt watcher stopped", "error", err)
			}
		}()
	}

	// Classifier
	clsCfg := classifier.DefaultConfig()
	clsCfg.PromptID = cfg.Classification.PromptID
	clsCfg.AudioPromptID = cfg.Classification.AudioPromptID
	clsCfg.DefaultModel = cfg.OpenAI.Model
	clsCfg.DefaultAudioModel = cfg.OpenAI.RealtimeModel
	if primary.Name() == "anthropic" {
		clsCfg.DefaultModel = cfg.Anthropic.Model
	}
	clsCfg.MinConfidenceThreshold = cfg.Classification.MinConfidenceThreshold
	clsCfg.Retry = classifier.RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		MinWait:  cfg.Retry.MinWait,
		MaxWait:  cfg.Retry.MaxWait,
	}
	clsOpts := []classifier.Option{classifier.WithMetrics(metrics), classifier.WithLogger(logger)}
	if audio, ok := backends.Audio(); ok {
		clsOpts = append(clsOpts, classifier.WithAudioBackend(audio))
	}
	cls := classifier.New(clsCfg, registry, primary, breakers, clsOpts...)

	// Review policy
	var review api.ReviewPolicy
	if cfg.Policy.Enabled {
		evaluator, err := policy.NewEvaluator(cfg.Policy.EvaluationTimeout, logger)
		if err != nil {
			logger.Error("failed to compile review policy", "error", err)
			os.Exit(1)
		}
		if err := evaluator.Load(cfg.Policy.Path); err != nil {
			logger.Error("failed to load review policies", "path", cfg.Policy.Path, "error", err)
			os.Exit(1)
		}
		review = evaluator
	}

	// Workflows
	var notifier workflow.Notifier = workflow.LogNotifier{Logger: logger}
	if cfg.Notify.SlackToken != "" && cfg.Notify.SlackChannel != "" {
		notifier = workflow.NewSlackNotifier(cfg.Notify.SlackToken, cfg.Notify.SlackChannel, cfg.Notify.SlackAPIURL)
		logger.Info("safety escalations notify slack", "channel", cfg.Notify.SlackChannel)
	}
	dispatcher := workflow.NewDefault(pii.NewRedactor(), notifier, logger)

	// Feedback
	store, closer, err := feedback.Open(ctx, cfg, rdb)
	if err != nil {
		logger.Error("failed to open feedback store", "store", cfg.Feedback.Store, "error", err)
		os.Exit(1)
	}
	defer closer.Close()
	retention := feedback.NewRetention(store, cfg.Feedback.Retention, logger)
	if err := retention.Start(cfg.Feedback.RetentionSchedule); err != nil {
		logger.Error("invalid feedback retention schedule", "schedule", cfg.Feedback.RetentionSchedule, "error", err)
		os.Exit(1)
	}
	defer retention.Stop()

	// Rate limiting
	var limiter ratelimit.Store
	if cfg.RateLimit.Enabled {
		rl := ratelimit.Config{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, BurstSize: cfg.RateLimit.BurstSize}
		if cfg.RateLimit.Backend == "redis" && rdb != nil {
			limiter = ratelimit.NewRedisStore(rdb, rl.Capacity(), rl.RefillRate(), cfg.RateLimit.ClientTTL)
		} else {
			limiter = ratelimit.NewLocalStore(rl.Capacity(), rl.RefillRate(), cfg.RateLimit.MaxClients, cfg.RateLimit.ClientTTL)
		}
	}

	router := api.NewRouter(api.Deps{
		Config:     cfg,
		Classifier: cls,
		Workflows:  dispatcher,
		Policy:     review,
		Feedback:   store,
		Prompts:    registry,
		Breakers:   breakers,
		Backends:   backends,
		Limiter:    limiter,
		Metrics:    metrics,
		Gatherer:   promReg,
		Logger:     logger,
	})

	if cfg.Server.GRPCHealthPort > 0 {
		go func() {
			if err := health.ListenAndServe(cfg.Server.Host, cfg.Server.GRPCHealthPort); err != nil {
				logger.Error("grpc health server error", "error", err)
			}
		}()
		defer health.Shutdown()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("contact center router starting",
			"addr", srv.Addr,
			"version", version,
			"environment", cfg.App.Environment,
			"backend", primary.Name(),
			"feedback_store", cfg.Feedback.Store,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("contact center router stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
