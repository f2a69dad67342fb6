package eventbus

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the bus options, loadable from YAML.
//
// Example:
//
//	name: campus
//	source: api
//	retry:
//	  maxRetries: 3
//	  delay: 100ms
//	requestTimeout: 5s
//	publishRateLimit:
//	  rps: 500
//	  burst: 50
type Config struct {
	Name             string          `yaml:"name"`
	Source           string          `yaml:"source"`
	Retry            RetryConfig     `yaml:"retry"`
	RequestTimeout   time.Duration   `yaml:"requestTimeout"`
	Tracing          bool            `yaml:"tracing"`
	Metrics          bool            `yaml:"metrics"`
	Recovery         bool            `yaml:"recovery"`
	PublishRateLimit RateLimitConfig `yaml:"publishRateLimit"`
}

// RetryConfig is the default retry policy for subscriptions.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	Delay      time.Duration `yaml:"delay"`
}

// RateLimitConfig configures the publish token bucket. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// DefaultConfig returns the configuration matching New with no options.
func DefaultConfig() Config {
	return Config{
		Name: DefaultBusName,
		Retry: RetryConfig{
			MaxRetries: DefaultMaxRetries,
			Delay:      DefaultRetryDelay,
		},
		RequestTimeout: DefaultRequestTimeout,
		Tracing:        true,
		Metrics:        true,
		Recovery:       true,
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
// Fields missing from data keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.maxRetries must be >= 0, got %d", c.Retry.MaxRetries))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must be >= 0, got %s", c.Retry.Delay))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("requestTimeout must be > 0, got %s", c.RequestTimeout))
	}
	if c.PublishRateLimit.RPS < 0 {
		errs = append(errs, fmt.Errorf("publishRateLimit.rps must be >= 0, got %g", c.PublishRateLimit.RPS))
	}
	if c.PublishRateLimit.RPS > 0 && c.PublishRateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("publishRateLimit.burst must be >= 1 when rps is set, got %d", c.PublishRateLimit.Burst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Options converts the config to bus options.
func (c Config) Options() []Option {
	return []Option{
		WithSource(c.Source),
		WithRetryPolicy(c.Retry.MaxRetries, c.Retry.Delay),
		WithDefaultRequestTimeout(c.RequestTimeout),
		WithTracing(c.Tracing),
		WithMetrics(c.Metrics),
		WithRecovery(c.Recovery),
		WithPublishRateLimit(c.PublishRateLimit.RPS, c.PublishRateLimit.Burst),
	}
}

// NewFromConfig creates a bus from c. extra options are applied after the
// config-derived ones.
func NewFromConfig(c Config, extra ...Option) (*Bus, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return New(c.Name, append(c.Options(), extra...)...), nil
}
