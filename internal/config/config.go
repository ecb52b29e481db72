// Package config provides configuration loading with layered overrides.
// Load order: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	configloader "github.com/GabrielNunesIT/go-libs/config-loader"
)

// EnvPrefix is the prefix for environment variable overrides.
// ANALYTICS_TRANSPORT_REQUEST_RETRIES -> request.retries
const EnvPrefix = "ANALYTICS_TRANSPORT_"

// Config is the root configuration structure for the transport.
type Config struct {
	LogLevel string        `koanf:"loglevel" yaml:"log_level" json:"log_level"`
	LogFile  LogFileConfig `koanf:"logfile" yaml:"log_file" json:"log_file"`
	AppID    string        `koanf:"appid" yaml:"app_id" json:"app_id"`
	Request  RequestConfig `koanf:"request"`
	Sender   SenderConfig  `koanf:"sender"`
	Watch    WatchConfig   `koanf:"watch"`
	Metrics  MetricsConfig `koanf:"metrics"`
}

// RequestConfig holds the connection options of a Dispatcher.
type RequestConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"` // 0 selects 443, or 80 when Insecure
	// Insecure disables TLS. The zero value talks HTTPS.
	Insecure bool              `koanf:"insecure"`
	Headers  map[string]string `koanf:"headers"`
	Path     string            `koanf:"path"`
	Retries  int               `koanf:"retries"`
	Backoff  time.Duration     `koanf:"backoff"`
	Stub     bool              `koanf:"stub"`
}

// LogFileConfig configures the optional rotating log file.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"maxsizemb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `koanf:"maxbackups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `koanf:"maxagedays" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// SenderConfig controls how the CLI splits and parallelises input.
type SenderConfig struct {
	Workers   int `koanf:"workers"`
	BatchSize int `koanf:"batchsize" yaml:"batch_size" json:"batch_size"`
}

// WatchConfig configures the directory watched by the watch command.
type WatchConfig struct {
	Dir      string        `koanf:"dir"`
	Pattern  string        `koanf:"pattern"`
	Debounce time.Duration `koanf:"debounce"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Address string `koanf:"address"`
}

// Default connection options.
const (
	DefaultHost    = "api.segment.io"
	DefaultPath    = "/v1/import"
	DefaultRetries = 4
	DefaultBackoff = 30 * time.Second
)

// defaults returns the default configuration values.
func defaults() Config {
	return Config{
		LogLevel: "info",
		LogFile: LogFileConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Request: DefaultRequestConfig(),
		Sender: SenderConfig{
			Workers:   1,
			BatchSize: 100,
		},
		Watch: WatchConfig{
			Pattern:  "*.json*",
			Debounce: 200 * time.Millisecond,
		},
	}
}

// DefaultRequestConfig returns the connection options used when none are configured.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		Host:    DefaultHost,
		Headers: map[string]string{},
		Path:    DefaultPath,
		Retries: DefaultRetries,
		Backoff: DefaultBackoff,
	}
}

// Scheme returns "https" unless Insecure is set.
func (c RequestConfig) Scheme() string {
	if c.Insecure {
		return "http"
	}
	return "https"
}

// ResolvedPort returns the configured port, or the scheme default when unset.
func (c RequestConfig) ResolvedPort() int {
	if c.Port > 0 {
		return c.Port
	}
	if c.Insecure {
		return 80
	}
	return 443
}

// Endpoint returns the full URL requests are posted to.
func (c RequestConfig) Endpoint() string {
	return fmt.Sprintf("%s://%s:%d%s", c.Scheme(), c.Host, c.ResolvedPort(), c.Path)
}

// Validate checks the connection options for values no request could be built from.
func (c RequestConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("request.host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("request.port out of range: %d", c.Port)
	}
	if c.Path != "" && !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("request.path must start with '/': %q", c.Path)
	}
	if c.Retries < 0 {
		return fmt.Errorf("request.retries must not be negative: %d", c.Retries)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("request.backoff must not be negative: %s", c.Backoff)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Request.Validate(); err != nil {
		return err
	}
	if c.Sender.Workers < 1 {
		return fmt.Errorf("sender.workers must be at least 1: %d", c.Sender.Workers)
	}
	if c.Sender.BatchSize < 0 {
		return fmt.Errorf("sender.batchsize must not be negative: %d", c.Sender.BatchSize)
	}
	return nil
}

// Load reads configuration from all sources with proper override order.
// Order: defaults -> config file -> environment variables.
func Load(configPath string) (*Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults[Config](defaults()),
	}

	// Add file source if path provided or if default config exists
	if configPath != "" {
		opts = append(opts, configloader.WithFile[Config](configPath))
	} else {
		for _, path := range []string{"./analytics-transport.yaml", "/etc/analytics-transport/config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				opts = append(opts, configloader.WithFile[Config](path))
				break
			}
		}
	}

	opts = append(opts, configloader.WithEnv[Config](EnvPrefix))

	loader := configloader.NewConfigLoader[Config](opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if cfg.Request.Headers == nil {
		cfg.Request.Headers = map[string]string{}
	}

	return &cfg, nil
}
