package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Security SecurityConfig
	Pipeline PipelineConfig
	TextGen  TextGenConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
}

type PipelineConfig struct {
	BatchSize    int
	AnomalyCount int
	StartDate    time.Time
	Days         int
	Seed         uint64
	RunTimeout   time.Duration
	RunOnStart   bool
}

const (
	ProviderTemplate = "template"
	ProviderOllama   = "ollama"

	FailureAbort       = "abort"
	FailurePlaceholder = "placeholder"
)

type TextGenConfig struct {
	Provider      string
	BaseURL       string
	Model         string
	MaxLength     int
	Timeout       time.Duration
	Workers       int
	MaxRetries    int
	RPS           float64
	FailurePolicy string
	Placeholder   string
}

var defaults = map[string]any{
	"server.host":             "localhost",
	"server.port":             8084,
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    0,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 30 * time.Second,

	"log.level":        "info",
	"log.format":       "json",
	"log.file":         "",
	"log.max_size_mb":  100,
	"log.max_backups":  3,
	"log.max_age_days": 28,

	"security.rate_limit_enabled": true,
	"security.rate_limit_rps":     100,
	"security.rate_limit_burst":   10,
	"security.allowed_origins":    "http://localhost:8084",

	"pipeline.batch_size":    200,
	"pipeline.anomaly_count": 5,
	"pipeline.start_date":    "2023-01-01",
	"pipeline.days":          90,
	"pipeline.seed":          0,
	"pipeline.run_timeout":   2 * time.Minute,
	"pipeline.run_on_start":  true,

	"textgen.provider":       ProviderTemplate,
	"textgen.base_url":       "http://localhost:11434",
	"textgen.model":          "distilgpt2",
	"textgen.max_length":     100,
	"textgen.timeout":        30 * time.Second,
	"textgen.workers":        1,
	"textgen.max_retries":    0,
	"textgen.rps":            0,
	"textgen.failure_policy": FailureAbort,
	"textgen.placeholder":    "No explanation available.",
}

// Load reads configuration from the environment (SERVER_PORT, TEXTGEN_MODEL,
// ...) and, when CONFIG_FILE is set, from that file. Environment wins.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("bind CONFIG_FILE: %w", err)
	}
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	startDate, err := time.Parse("2006-01-02", v.GetString("pipeline.start_date"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: pipeline start date: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Logger: LoggerConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Security: SecurityConfig{
			EnableRateLimit: v.GetBool("security.rate_limit_enabled"),
			RateLimitRPS:    v.GetInt("security.rate_limit_rps"),
			RateLimitBurst:  v.GetInt("security.rate_limit_burst"),
			AllowedOrigins:  splitList(v.GetString("security.allowed_origins")),
		},
		Pipeline: PipelineConfig{
			BatchSize:    v.GetInt("pipeline.batch_size"),
			AnomalyCount: v.GetInt("pipeline.anomaly_count"),
			StartDate:    startDate,
			Days:         v.GetInt("pipeline.days"),
			Seed:         v.GetUint64("pipeline.seed"),
			RunTimeout:   v.GetDuration("pipeline.run_timeout"),
			RunOnStart:   v.GetBool("pipeline.run_on_start"),
		},
		TextGen: TextGenConfig{
			Provider:      strings.ToLower(v.GetString("textgen.provider")),
			BaseURL:       strings.TrimRight(v.GetString("textgen.base_url"), "/"),
			Model:         v.GetString("textgen.model"),
			MaxLength:     v.GetInt("textgen.max_length"),
			Timeout:       v.GetDuration("textgen.timeout"),
			Workers:       v.GetInt("textgen.workers"),
			MaxRetries:    v.GetInt("textgen.max_retries"),
			RPS:           v.GetFloat64("textgen.rps"),
			FailurePolicy: strings.ToLower(v.GetString("textgen.failure_policy")),
			Placeholder:   v.GetString("textgen.placeholder"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline batch size must be positive")
	}

	if c.Pipeline.AnomalyCount < 0 {
		return fmt.Errorf("pipeline anomaly count must not be negative")
	}

	if c.Pipeline.Days <= 0 {
		return fmt.Errorf("pipeline days must be positive")
	}

	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("pipeline run timeout must be positive")
	}

	validProviders := []string{ProviderTemplate, ProviderOllama}
	if !slices.Contains(validProviders, c.TextGen.Provider) {
		return fmt.Errorf("invalid text generation provider %q, must be one of: %s", c.TextGen.Provider, strings.Join(validProviders, ", "))
	}

	if c.TextGen.Provider == ProviderOllama && c.TextGen.BaseURL == "" {
		return fmt.Errorf("text generation base URL cannot be empty")
	}

	if c.TextGen.MaxLength <= 0 {
		return fmt.Errorf("text generation max length must be positive")
	}

	if c.TextGen.Workers <= 0 {
		return fmt.Errorf("text generation workers must be positive")
	}

	if c.TextGen.MaxRetries < 0 {
		return fmt.Errorf("text generation max retries must not be negative")
	}

	if c.TextGen.RPS < 0 {
		return fmt.Errorf("text generation RPS must not be negative")
	}

	validPolicies := []string{FailureAbort, FailurePlaceholder}
	if !slices.Contains(validPolicies, c.TextGen.FailurePolicy) {
		return fmt.Errorf("invalid failure policy %q, must be one of: %s", c.TextGen.FailurePolicy, strings.Join(validPolicies, ", "))
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
