package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App         AppConfig
	HTTP        HTTPConfig
	Log         LogConfig
	Printing    PrintingConfig
	IPP         IPPConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Telemetry   TelemetryConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64 // Max request body size in bytes
	RateLimitEnabled  bool
	RateLimitRequests int           // Max print submissions per window per client
	RateLimitWindow   time.Duration // Rate limit window
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// Printing backends
const (
	BackendOS  = "os"
	BackendIPP = "ipp"
)

// PrintingConfig holds print pipeline configuration
type PrintingConfig struct {
	Backend                string  // os (lpstat/lp, powershell/SumatraPDF) or ipp
	TempDir                string  // Directory for temporary artifacts (empty = OS temp dir)
	RenderDPI              float64 // 72 renders at native page size (1 pixel = 1 point)
	ListTimeout            time.Duration
	DispatchTimeout        time.Duration
	JobTimeout             time.Duration // Upper bound for one pipeline run
	MaxConcurrentJobs      int           // 0 = unlimited
	BlockVirtualPrinters   bool
	VirtualPrinterKeywords []string
	LpCommand              string // POSIX print command
	LpstatCommand          string // POSIX printer listing command
	WindowsPrintCommand    string // SumatraPDF executable used on Windows
	Redactions             []printing.RedactionRegion
}

// IPPConfig holds IPP/CUPS server configuration for the ipp backend
type IPPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// IdempotencyConfig controls duplicate print submission detection
type IdempotencyConfig struct {
	Enabled   bool
	Store     string // memory or redis
	TTL       time.Duration
	KeyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool    // Whether to enable tracing
	MetricsEnabled        bool    // Whether to export metrics
	CollectorEndpoint     string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio         float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName           string  // Service name for traces and metrics
	Insecure              bool    // Use insecure (non-TLS) connection (development only)
	MetricsExportInterval time.Duration
	LogsEnabled           bool // Mirror zap output to the collector

	// Continuous profiling
	ProfilingEnabled       bool
	ProfilingServerAddress string // Pyroscope server, e.g. "http://pyroscope:4040"
	SpanProfilesEnabled    bool   // Attach span IDs to CPU profiles
}

// Load loads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/secure-pdf-viewer")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file values, e.g. SPV_PRINTING_BACKEND
	v.SetEnvPrefix("SPV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be detected as "unset" after loading
	v.SetDefault("printing.block_virtual_printers", true)
	v.SetDefault("idempotency.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Printing: PrintingConfig{
			Backend:                v.GetString("printing.backend"),
			TempDir:                v.GetString("printing.temp_dir"),
			RenderDPI:              v.GetFloat64("printing.render_dpi"),
			ListTimeout:            v.GetDuration("printing.list_timeout"),
			DispatchTimeout:        v.GetDuration("printing.dispatch_timeout"),
			JobTimeout:             v.GetDuration("printing.job_timeout"),
			MaxConcurrentJobs:      v.GetInt("printing.max_concurrent_jobs"),
			BlockVirtualPrinters:   v.GetBool("printing.block_virtual_printers"),
			VirtualPrinterKeywords: v.GetStringSlice("printing.virtual_printer_keywords"),
			LpCommand:              v.GetString("printing.lp_command"),
			LpstatCommand:          v.GetString("printing.lpstat_command"),
			WindowsPrintCommand:    v.GetString("printing.windows_print_command"),
		},
		IPP: IPPConfig{
			Host:     v.GetString("ipp.host"),
			Port:     v.GetInt("ipp.port"),
			Username: v.GetString("ipp.username"),
			Password: v.GetString("ipp.password"),
			TLS:      v.GetBool("ipp.tls"),
		},
		Idempotency: IdempotencyConfig{
			Enabled:   v.GetBool("idempotency.enabled"),
			Store:     v.GetString("idempotency.store"),
			TTL:       v.GetDuration("idempotency.ttl"),
			KeyPrefix: v.GetString("idempotency.key_prefix"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),

			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			SpanProfilesEnabled:    v.GetBool("telemetry.span_profiles_enabled"),
		},
	}

	if err := v.UnmarshalKey("printing.redactions", &cfg.Printing.Redactions); err != nil {
		return nil, fmt.Errorf("error reading printing.redactions: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "secure-pdf-viewer"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "3001"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 150 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 50 << 20 // 50MB, PDFs arrive base64 encoded
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 10
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// No wildcard fallback: cross-origin access must be configured explicitly.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "Idempotency-Key"}
	}
	if cfg.Printing.Backend == "" {
		cfg.Printing.Backend = BackendOS
	}
	if cfg.Printing.RenderDPI == 0 {
		cfg.Printing.RenderDPI = 72
	}
	if cfg.Printing.ListTimeout == 0 {
		cfg.Printing.ListTimeout = 10 * time.Second
	}
	if cfg.Printing.DispatchTimeout == 0 {
		cfg.Printing.DispatchTimeout = 60 * time.Second
	}
	if cfg.Printing.JobTimeout == 0 {
		cfg.Printing.JobTimeout = 2 * time.Minute
	}
	if len(cfg.Printing.VirtualPrinterKeywords) == 0 {
		cfg.Printing.VirtualPrinterKeywords = append([]string(nil), printing.DefaultVirtualPrinterKeywords...)
	}
	if cfg.Printing.LpCommand == "" {
		cfg.Printing.LpCommand = "lp"
	}
	if cfg.Printing.LpstatCommand == "" {
		cfg.Printing.LpstatCommand = "lpstat"
	}
	if cfg.Printing.WindowsPrintCommand == "" {
		cfg.Printing.WindowsPrintCommand = "SumatraPDF.exe"
	}
	if cfg.IPP.Host == "" {
		cfg.IPP.Host = "localhost"
	}
	if cfg.IPP.Port == 0 {
		cfg.IPP.Port = 631
	}
	if cfg.Idempotency.Store == "" {
		cfg.Idempotency.Store = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 10 * time.Minute
	}
	if cfg.Idempotency.KeyPrefix == "" {
		cfg.Idempotency.KeyPrefix = "print:idempotency:"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Printing.Backend {
	case BackendOS, BackendIPP:
	default:
		return fmt.Errorf("printing.backend must be %q or %q, got %q", BackendOS, BackendIPP, c.Printing.Backend)
	}
	if c.Printing.RenderDPI < 18 || c.Printing.RenderDPI > 600 {
		return fmt.Errorf("printing.render_dpi must be between 18 and 600, got %v", c.Printing.RenderDPI)
	}
	if c.Printing.MaxConcurrentJobs < 0 {
		return fmt.Errorf("printing.max_concurrent_jobs cannot be negative")
	}
	if c.Printing.DispatchTimeout > c.Printing.JobTimeout {
		return fmt.Errorf("printing.dispatch_timeout (%s) cannot exceed printing.job_timeout (%s)",
			c.Printing.DispatchTimeout, c.Printing.JobTimeout)
	}
	if c.HTTP.WriteTimeout <= c.Printing.JobTimeout {
		return fmt.Errorf("http.write_timeout (%s) must be greater than printing.job_timeout (%s)",
			c.HTTP.WriteTimeout, c.Printing.JobTimeout)
	}
	for i, r := range c.Printing.Redactions {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("printing.redactions[%d]: %w", i, err)
		}
	}

	switch c.Idempotency.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("idempotency.store must be \"memory\" or \"redis\", got %q", c.Idempotency.Store)
	}

	if c.App.Env == "production" {
		// CORS must not use wildcard in production
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServerAddress == "" {
		return fmt.Errorf("telemetry.profiling_server_address is required when profiling is enabled")
	}

	return nil
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
