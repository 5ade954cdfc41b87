package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PERSONA_"

// Config captures everything needed to run the ingestion service.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Lock      LockConfig      `yaml:"lock" envPrefix:"LOCK_"`
	Crawl     CrawlConfig     `yaml:"crawl" envPrefix:"CRAWL_"`
	Images    ImagesConfig    `yaml:"images" envPrefix:"IMAGES_"`
	Rendering RenderingConfig `yaml:"rendering" envPrefix:"RENDERING_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// StorageConfig locates the files the service owns.
type StorageConfig struct {
	UploadsDir   string `yaml:"uploads_dir" env:"UPLOADS_DIR"`
	RegistryPath string `yaml:"registry_path" env:"REGISTRY_PATH"`
	StatusPath   string `yaml:"status_path" env:"STATUS_PATH"`
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`
}

// LockConfig tunes the registry's advisory lock.
type LockConfig struct {
	Timeout       Duration `yaml:"timeout" env:"TIMEOUT"`
	RetryInterval Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	StaleAfter    Duration `yaml:"stale_after" env:"STALE_AFTER"`
}

// CrawlConfig controls page fetching and the per-job page budget.
type CrawlConfig struct {
	MaxPages           int               `yaml:"max_pages" env:"MAX_PAGES"`
	RequestTimeout     Duration          `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	UserAgent          string            `yaml:"user_agent" env:"USER_AGENT"`
	Headers            map[string]string `yaml:"headers"`
	PerDomainDelay     Duration          `yaml:"per_domain_delay" env:"PER_DOMAIN_DELAY"`
	RateLimitPerDomain RateLimitConfig   `yaml:"rate_limit_per_domain" envPrefix:"RATE_LIMIT_"`
	TopKeywords        int               `yaml:"top_keywords" env:"TOP_KEYWORDS"`
	DetectLanguage     bool              `yaml:"detect_language" env:"DETECT_LANGUAGE"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests" env:"REQUESTS"`
	Window   Duration `yaml:"window" env:"WINDOW"`
}

// ImagesConfig controls the image download phase.
type ImagesConfig struct {
	Concurrency  int      `yaml:"concurrency" env:"CONCURRENCY"`
	Timeout      Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxSizeBytes int64    `yaml:"max_size_bytes" env:"MAX_SIZE_BYTES"`
}

// RenderingConfig controls optional JavaScript rendering of text-less pages.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled" env:"ENABLED"`
	Timeout            Duration `yaml:"timeout" env:"TIMEOUT"`
	WaitForSelector    string   `yaml:"wait_for_selector" env:"WAIT_FOR_SELECTOR"`
	CaptureDelay       Duration `yaml:"capture_delay" env:"CAPTURE_DELAY"`
	ConcurrentSessions int      `yaml:"concurrent_sessions" env:"CONCURRENT_SESSIONS"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr" env:"ADDR"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Structured bool   `yaml:"structured" env:"STRUCTURED"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			UploadsDir:   "data/uploads",
			RegistryPath: "data/assets.json",
			StatusPath:   "data/crawl_status.json",
			DatabasePath: "data/ingest.db",
		},
		Lock: LockConfig{
			Timeout:       DurationFrom(10 * time.Second),
			RetryInterval: DurationFrom(50 * time.Millisecond),
			StaleAfter:    DurationFrom(60 * time.Second),
		},
		Crawl: CrawlConfig{
			MaxPages:       50,
			RequestTimeout: DurationFrom(15 * time.Second),
			MaxBodyBytes:   10 << 20,
			Headers:        map[string]string{},
			PerDomainDelay: DurationFrom(0),
			TopKeywords:    10,
			DetectLanguage: true,
		},
		Images: ImagesConfig{
			Concurrency:  5,
			Timeout:      DurationFrom(15 * time.Second),
			MaxSizeBytes: 10 << 20,
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Timeout:            DurationFrom(45 * time.Second),
			CaptureDelay:       DurationFrom(2 * time.Second),
			ConcurrentSessions: 1,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			MaxUploadBytes:  50 << 20,
			ShutdownTimeout: DurationFrom(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "persona-ingest",
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides and
// validates the result. A missing file is an error unless optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	fh, err := os.Open(path)
	switch {
	case err == nil:
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	return finish(&cfg, nil)
}

// LoadFromReader decodes configuration from an arbitrary reader. environ
// replaces the process environment when non-nil.
func LoadFromReader(r io.Reader, environ map[string]string) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg, environ)
}

func finish(cfg *Config, environ map[string]string) (*Config, error) {
	if err := applyEnv(cfg, environ); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate enforces required invariants.
func (c Config) Validate() error {
	if c.Storage.UploadsDir == "" {
		return errors.New("storage.uploads_dir must be set")
	}
	if c.Storage.RegistryPath == "" {
		return errors.New("storage.registry_path must be set")
	}
	if c.Storage.StatusPath == "" {
		return errors.New("storage.status_path must be set")
	}
	if c.Lock.Timeout.Duration <= 0 {
		return fmt.Errorf("lock.timeout must be > 0 (got %s)", c.Lock.Timeout)
	}
	if c.Lock.RetryInterval.Duration <= 0 {
		return fmt.Errorf("lock.retry_interval must be > 0 (got %s)", c.Lock.RetryInterval)
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0 (got %s)", c.Crawl.RequestTimeout)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Crawl.PerDomainDelay.Duration < 0 {
		return fmt.Errorf("crawl.per_domain_delay must be >= 0 (got %s)", c.Crawl.PerDomainDelay)
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests > 0 && rl.Window.Duration <= 0 {
		return errors.New("crawl.rate_limit_per_domain.window must be > 0 when requests is set")
	}
	if c.Images.Concurrency <= 0 {
		return fmt.Errorf("images.concurrency must be > 0 (got %d)", c.Images.Concurrency)
	}
	if c.Images.Timeout.Duration <= 0 {
		return fmt.Errorf("images.timeout must be > 0 (got %s)", c.Images.Timeout)
	}
	if c.Images.MaxSizeBytes <= 0 {
		return fmt.Errorf("images.max_size_bytes must be > 0 (got %d)", c.Images.MaxSizeBytes)
	}
	if c.Rendering.Enabled && c.Rendering.ConcurrentSessions <= 0 {
		return fmt.Errorf("rendering.concurrent_sessions must be > 0 (got %d)", c.Rendering.ConcurrentSessions)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}

func (c *Config) normalise() {
	c.Storage.UploadsDir = strings.TrimSpace(c.Storage.UploadsDir)
	c.Storage.RegistryPath = strings.TrimSpace(c.Storage.RegistryPath)
	c.Storage.StatusPath = strings.TrimSpace(c.Storage.StatusPath)
	c.Storage.DatabasePath = strings.TrimSpace(c.Storage.DatabasePath)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = make(map[string]string)
	}
	c.Rendering.WaitForSelector = strings.TrimSpace(c.Rendering.WaitForSelector)
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
	if c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName); c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "persona-ingest"
	}
}
