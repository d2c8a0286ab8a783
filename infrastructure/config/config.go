package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "flowstudio/domain/config"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string        `yaml:"server_address"`
	Environment     string        `yaml:"environment"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	// Generation service
	GenerationURL       string        `yaml:"generation_url"`
	GenerationAPIKey    string        `yaml:"generation_api_key"`
	GenerationTimeout   time.Duration `yaml:"generation_timeout"`
	BreakerMaxFailures  int           `yaml:"breaker_max_failures"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout"`
	GenerationRateLimit int           `yaml:"generation_rate_limit"` // per client per minute; 0 disables

	// Asset storage
	AssetDatabase string `yaml:"asset_database"`

	// Worker pool
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	// Rendering
	EnableRendering   bool          `yaml:"enable_rendering"`
	ImageFetchTimeout time.Duration `yaml:"image_fetch_timeout"`

	// Graph rules; zero keeps the environment default
	MaxNodesPerGraph  int    `yaml:"max_nodes_per_graph"`
	MaxEdgesPerGraph  int    `yaml:"max_edges_per_graph"`
	MaxHistorySteps   int    `yaml:"max_history_steps"`
	DefaultImageModel string `yaml:"default_image_model"`
	DefaultVideoModel string `yaml:"default_video_model"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Tracing
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`

	// Feature flags
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
	EnableCORS    bool `yaml:"enable_cors"`

	// File is the YAML file the configuration was read from, if any.
	File string `yaml:"-"`
}

// Defaults returns the configuration used when neither a file nor the
// environment says otherwise. Graph rules are left zero so the
// environment's DomainConfig applies.
func Defaults() *Config {
	d := domainconfig.DefaultDomainConfig()
	return &Config{
		ServerAddress:   ":8080",
		Environment:     "development",
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"*"},

		GenerationURL:       "http://localhost:9000",
		GenerationTimeout:   d.GenerationTimeout,
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  30 * time.Second,
		GenerationRateLimit: 30,

		AssetDatabase: "flowstudio.db",

		Workers:   8,
		QueueSize: 64,

		EnableRendering:   true,
		ImageFetchTimeout: 20 * time.Second,

		LogLevel:        "info",
		TracingEndpoint: "localhost:4317",
		TraceSampleRate: 0,

		EnableMetrics: true,
		EnableTracing: false,
		EnableCORS:    true,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	return Load(getEnv("CONFIG_FILE", ""))
}

// Load is LoadConfig with an explicit file. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) loadEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	c.GenerationURL = getEnv("GENERATION_URL", c.GenerationURL)
	c.GenerationAPIKey = getEnv("GENERATION_API_KEY", c.GenerationAPIKey)
	c.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", c.GenerationTimeout)
	c.BreakerMaxFailures = getEnvInt("BREAKER_MAX_FAILURES", c.BreakerMaxFailures)
	c.BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", c.BreakerOpenTimeout)
	c.GenerationRateLimit = getEnvInt("GENERATION_RATE_LIMIT", c.GenerationRateLimit)

	c.AssetDatabase = getEnv("ASSET_DATABASE", c.AssetDatabase)

	c.Workers = getEnvInt("WORKERS", c.Workers)
	c.QueueSize = getEnvInt("QUEUE_SIZE", c.QueueSize)

	c.EnableRendering = getEnvBool("ENABLE_RENDERING", c.EnableRendering)
	c.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", c.ImageFetchTimeout)

	c.MaxNodesPerGraph = getEnvInt("MAX_NODES_PER_GRAPH", c.MaxNodesPerGraph)
	c.MaxEdgesPerGraph = getEnvInt("MAX_EDGES_PER_GRAPH", c.MaxEdgesPerGraph)
	c.MaxHistorySteps = getEnvInt("MAX_HISTORY_STEPS", c.MaxHistorySteps)
	c.DefaultImageModel = getEnv("DEFAULT_IMAGE_MODEL", c.DefaultImageModel)
	c.DefaultVideoModel = getEnv("DEFAULT_VIDEO_MODEL", c.DefaultVideoModel)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.TracingEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.TracingEndpoint)
	c.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", c.TraceSampleRate)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error
	if c.ServerAddress == "" {
		errs = append(errs, errors.New("SERVER_ADDRESS is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.GenerationRateLimit < 0 {
		errs = append(errs, fmt.Errorf("generation rate limit must not be negative, got %d", c.GenerationRateLimit))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.QueueSize))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, fmt.Errorf("trace sample rate must be within [0,1], got %v", c.TraceSampleRate))
	}
	if err := c.DomainConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.IsProduction() && c.GenerationAPIKey == "" {
		errs = append(errs, errors.New("GENERATION_API_KEY is required in production"))
	}
	return errors.Join(errs...)
}

// DomainConfig returns the graph rules for the environment with the
// configured overrides applied.
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	d := domainconfig.LoadDomainConfig(c.Environment)
	if c.MaxNodesPerGraph != 0 {
		d.MaxNodesPerGraph = c.MaxNodesPerGraph
	}
	if c.MaxEdgesPerGraph != 0 {
		d.MaxEdgesPerGraph = c.MaxEdgesPerGraph
	}
	if c.MaxHistorySteps != 0 {
		d.MaxHistorySteps = c.MaxHistorySteps
	}
	if c.DefaultImageModel != "" {
		d.DefaultImageModel = c.DefaultImageModel
	}
	if c.DefaultVideoModel != "" {
		d.DefaultVideoModel = c.DefaultVideoModel
	}
	if c.GenerationTimeout > 0 {
		d.GenerationTimeout = c.GenerationTimeout
	}
	return d
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
