// Package config loads service settings from config.yaml, a .env file and
// WBP_ prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. WBP_SERVER_ADDR.
const EnvPrefix = "WBP"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Platform PlatformConfig `mapstructure:"platform"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig tunes the readiness check and submission.
type PipelineConfig struct {
	PageSize      int           `mapstructure:"page_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	AllowEmpty    bool          `mapstructure:"allow_empty"`
	RulesFile     string        `mapstructure:"rules_file"`
	Workers       int           `mapstructure:"workers"`
}

// EndpointConfig selects where payloads go. Mode is "http" or "file".
type EndpointConfig struct {
	Mode      string `mapstructure:"mode"`
	URL       string `mapstructure:"url"`
	OutputDir string `mapstructure:"output_dir"`
	Format    string `mapstructure:"format"`
}

// PlatformConfig points the record source at a hosted platform instead of
// the local database when BaseURL is set.
type PlatformConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RedisConfig enables the cross-process submission lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type StorageConfig struct {
	S3Enabled bool   `mapstructure:"s3_enabled"`
	Region    string `mapstructure:"region"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Redact bool   `mapstructure:"redact"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("database.path", "pipeline.db")
	v.SetDefault("pipeline.page_size", 1000)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.submit_timeout", 30*time.Second)
	v.SetDefault("pipeline.allow_empty", true)
	v.SetDefault("pipeline.rules_file", "")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("endpoint.mode", "file")
	v.SetDefault("endpoint.url", "")
	v.SetDefault("endpoint.output_dir", "output")
	v.SetDefault("endpoint.format", "json")
	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.api_key", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)
	v.SetDefault("storage.s3_enabled", false)
	v.SetDefault("storage.region", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.redact", true)
}

// Load reads configuration. path may be a config file or a directory holding
// config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = "."
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", filepath.Clean(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// env lists are comma separated and may carry spaces
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Endpoint.Mode {
	case "http":
		if c.Endpoint.URL == "" {
			return errors.New("endpoint.url is required when endpoint.mode is http")
		}
	case "file":
		if c.Endpoint.OutputDir == "" {
			return errors.New("endpoint.output_dir is required when endpoint.mode is file")
		}
	default:
		return fmt.Errorf("endpoint.mode must be http or file, got %q", c.Endpoint.Mode)
	}
	if c.Pipeline.PageSize <= 0 {
		return fmt.Errorf("pipeline.page_size must be positive, got %d", c.Pipeline.PageSize)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.SubmitTimeout <= 0 {
		return errors.New("pipeline.submit_timeout must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
