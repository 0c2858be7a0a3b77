package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	printingapp "github.com/sgpatel/secure-pdf-viewer/internal/application/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/cache"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/config"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/logger"
	infra "github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/telemetry"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/handler"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/middleware"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/sgpatel/secure-pdf-viewer"

func main() {
	// A local .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger, falling back to the preset for the environment
	var log *zap.Logger
	if cfg.Log.Level == "" && cfg.Log.Format == "" && cfg.Log.Output == "" {
		log, err = logger.NewForEnvironment(cfg.App.Env)
	} else {
		log, err = logger.New(&logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting secure print service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("backend", cfg.Printing.Backend),
	)

	ctx := context.Background()

	// Telemetry
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	if cfg.Telemetry.SpanProfilesEnabled && profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	// Everything below also reaches the collector when log export is on
	log = lp.Bridge(log, log.Level())
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := mp.Meter(instrumentationName)
	printMetrics, err := telemetry.NewPrintMetrics(meter, cfg.Printing.Backend)
	if err != nil {
		log.Warn("Print metrics unavailable", zap.Error(err))
	}

	// Printer backend
	var (
		directory  printing.PrinterDirectory
		dispatcher printing.Dispatcher
	)
	switch cfg.Printing.Backend {
	case config.BackendIPP:
		backend := infra.NewIPPBackend(infra.IPPConfig{
			Host:     cfg.IPP.Host,
			Port:     cfg.IPP.Port,
			Username: cfg.IPP.Username,
			Password: cfg.IPP.Password,
			TLS:      cfg.IPP.TLS,
			Timeout:  cfg.Printing.DispatchTimeout,
			Logger:   log.Named("ipp"),
		})
		directory, dispatcher = backend, backend
	default:
		directory = infra.NewOSDirectory(infra.OSDirectoryConfig{
			LpstatCommand: cfg.Printing.LpstatCommand,
			Timeout:       cfg.Printing.ListTimeout,
			Logger:        log.Named("directory"),
		})
		dispatcher = infra.NewOSDispatcher(infra.OSDispatcherConfig{
			LpCommand:           cfg.Printing.LpCommand,
			WindowsPrintCommand: cfg.Printing.WindowsPrintCommand,
			Timeout:             cfg.Printing.DispatchTimeout,
			Logger:              log.Named("dispatcher"),
		})
	}

	rasterizer := infra.NewFitzRasterizer(infra.FitzRasterizerConfig{
		DPI:    cfg.Printing.RenderDPI,
		Logger: log.Named("rasterizer"),
	})

	// Workspaces left behind by a crash are older than any running job
	if n, err := infra.SweepStale(ctx, cfg.Printing.TempDir, 2*cfg.Printing.JobTimeout, log); err != nil {
		log.Warn("Failed to sweep stale print workspaces", zap.Error(err))
	} else if n > 0 {
		log.Info("Removed stale print workspaces", zap.Int("count", n))
	}

	pipeline := printingapp.NewPipeline(printingapp.PipelineConfig{
		Directory:         directory,
		Rasterizer:        rasterizer,
		Inspector:         rasterizer,
		Flattener:         infra.NewPdfcpuFlattener(log.Named("flattener")),
		Dispatcher:        dispatcher,
		VirtualPrinters:   printing.NewVirtualPrinterPolicy(cfg.Printing.BlockVirtualPrinters, cfg.Printing.VirtualPrinterKeywords),
		Redactions:        cfg.Printing.Redactions,
		RenderDPI:         rasterizer.DPI(),
		TempDir:           cfg.Printing.TempDir,
		MaxConcurrentJobs: cfg.Printing.MaxConcurrentJobs,
		Metrics:           printMetrics,
		Tracer:            tp.Tracer(instrumentationName),
		Logger:            log.Named("pipeline"),
	})

	// Duplicate submission guard
	var idempotencyStore printing.IdempotencyStore
	healthChecks := map[string]handler.HealthCheck{}
	if cfg.Idempotency.Enabled {
		factory := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		)
		idempotencyStore, err = factory.CreateStore(ctx)
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		if redisStore, ok := idempotencyStore.(*cache.RedisIdempotencyStore); ok {
			healthChecks["redis"] = redisStore.Ping
		}
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Tracing - Server span, enriched after RequestID
	// 4. Logger - Log requests with trace context
	// 5. Metrics - Request count and latency
	// 6. Security, CORS, body limit
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tp.IsEnabled(),
	}))
	engine.Use(middleware.SpanAttributes())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(meter))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting applies to print submissions only
	var submitLimit []gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer rateLimiter.Stop()
		submitLimit = append(submitLimit, middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	printHandler := handler.NewPrintHandler(pipeline, handler.PrintHandlerConfig{
		JobTimeout:     cfg.Printing.JobTimeout,
		Idempotency:    idempotencyStore,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Logger:         log.Named("http"),
	})
	systemHandler := handler.NewSystemHandler(handler.SystemHandlerConfig{
		Name:    cfg.App.Name,
		Version: cfg.App.Version,
		Backend: cfg.Printing.Backend,
		Checks:  healthChecks,
	})

	router.NewRouter(engine).
		Register(handler.PrintRoutes(printHandler, submitLimit...)).
		Register(handler.SystemRoutes(systemHandler)).
		Setup()

	// Plain liveness probe outside the API prefix
	engine.GET("/health", systemHandler.Health)

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Running jobs get their full timeout to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Printing.JobTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if idempotencyStore != nil {
		if err := idempotencyStore.Close(); err != nil {
			log.Warn("Error closing idempotency store", zap.Error(err))
		}
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down meter provider", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down tracer provider", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down logger provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Error stopping profiler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
