package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
	"github.com/shannon-labs/resilientd/internal/config"
	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/health"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
	"github.com/shannon-labs/resilientd/internal/pricing"
	"github.com/shannon-labs/resilientd/internal/ratecontrol"
	"github.com/shannon-labs/resilientd/internal/sink"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main wires the resilience core's process-wide services explicitly and
// injects them into one another; there is no package-level singleton
// anywhere in this composition. Concrete cloud/local adapters are not part
// of this module (they are consumed interfaces, see internal/fallback's
// capability contracts), and this binary registers none: the ServiceRegistry
// starts empty and the Router is built without provider functions, which
// NewRouter is the only place to supply.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	breakers := circuitbreaker.NewRegistry("resilientd", cfg.Breaker.ToBreakerConfig(), logger, circuitbreaker.NewMetricsCollector())

	hm := health.NewManager(logger)
	if err := hm.UpdateConfiguration(cfg.Health.ToHealthConfiguration()); err != nil {
		logger.Fatal("failed to apply health configuration", zap.Error(err))
	}
	if err := hm.Start(ctx); err != nil {
		logger.Fatal("failed to start health manager", zap.Error(err))
	}
	defer hm.Stop()

	// Hot-reload: a single watched directory carries both resilience.yaml
	// (breaker/health/fallback/LLM tunables) and models.yaml (pricing and
	// per-tier/per-provider rate limits). Writes to either are picked up
	// without a restart.
	configDir := getEnvOrDefault("RESILIENCE_CONFIG_DIR", "./config")
	fileWatcher, err := config.NewConfigManager(configDir, logger)
	if err != nil {
		logger.Fatal("failed to initialize configuration watcher", zap.Error(err))
	}
	fileWatcher.RegisterHandler("models.yaml", func(event config.ChangeEvent) error {
		pricing.Reload()
		ratecontrol.Reload()
		return nil
	})

	resilienceConfig := config.NewConfigurationManager(fileWatcher, logger)
	resilienceConfig.RegisterCallback(func(old, new *config.Configuration) error {
		return hm.UpdateConfiguration(new.Health.ToHealthConfiguration())
	})
	if err := resilienceConfig.Initialize(); err != nil {
		logger.Fatal("failed to initialize resilience configuration watcher", zap.Error(err))
	}
	if err := fileWatcher.Start(ctx); err != nil {
		logger.Fatal("failed to start configuration watcher", zap.Error(err))
	}
	defer fileWatcher.Stop()

	serviceRegistry := fallback.NewServiceRegistry(logger)

	// The recovery probe treats a service as healthy once the health
	// manager's latest result for the checker of the same name is healthy;
	// callers that register a health.Checker for a given service name get
	// recovery monitoring for free. A service with no such checker never
	// probes healthy.
	probe := func(ctx context.Context, service string) bool {
		result, ok := hm.GetLastResults()[service]
		return ok && result.Status == health.StatusHealthy
	}

	coordinator := fallback.NewCoordinator(serviceRegistry, breakers, cfg.Fallback.ToCoordinatorConfig(), probe, logger)
	defer coordinator.Shutdown(context.Background())

	// The usage/transition sink is optional: without SINK_DSN the core runs
	// with no durable accounting trail, only the in-memory history/health
	// views the /resilience endpoints already expose.
	var usageSink *sink.Sink
	if dsn := os.Getenv("SINK_DSN"); dsn != "" {
		sinkCfg := sink.DefaultConfig()
		sinkCfg.DSN = dsn
		s, err := sink.New(sinkCfg, logger)
		if err != nil {
			logger.Error("failed to initialize usage sink, continuing without it", zap.Error(err))
		} else {
			usageSink = s
			defer usageSink.Close()
			coordinator.OnTransition(usageSink.RecordTransition)
		}
	}

	var onUsage func(llmrouter.UsageRecord)
	if usageSink != nil {
		onUsage = usageSink.RecordUsage
	}

	llmBreakers := circuitbreaker.NewRegistry("llm", circuitbreaker.GetLLMConfig().ToConfig(), logger, nil)
	router := llmrouter.NewRouter(llmBreakers, nil, nil, nil, cfg.LLM.ToRouterConfig(), onUsage, logger)
	_ = router // built with no provider functions, so Generate finds no provider to call

	tenantVerifier := llmrouter.NewTenantVerifier(getEnvOrDefault("RESILIENCE_JWT_SIGNING_KEY", "dev-signing-key"), "resilientd")

	mux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)
	registerResilienceRoutes(mux, coordinator, router, tenantVerifier)
	mux.Handle("/metrics", promhttp.Handler())

	adminPort := getEnvOrDefaultInt("ADMIN_PORT", 8081)
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(adminPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("admin HTTP server listening", zap.Int("port", adminPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down resilience core")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin HTTP server shutdown error", zap.Error(err))
	}
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
