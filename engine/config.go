package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the tunables an Engine is built from, loadable from a
// YAML file. It describes engine behaviour only — never workflow steps,
// which stay a Go-code concern.
type EngineConfig struct {
	Name                   string        `yaml:"name" validate:"required"`
	MaxRetries             int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	RetryDelay             time.Duration `yaml:"retry_delay" default:"1s"`
	StepTimeout            time.Duration `yaml:"step_timeout" default:"5m"`
	CompensationTimeout    time.Duration `yaml:"compensation_timeout" default:"60s"`
	MaxCompensationRetries int           `yaml:"max_compensation_retries" default:"1" validate:"gte=0"`
	LoggingEnabled         bool          `yaml:"logging_enabled" default:"true"`
	SkipCompensation       bool          `yaml:"skip_compensation" default:"false"`
	AsyncPoolSize          int           `yaml:"async_pool_size" default:"16" validate:"gt=0"`
}

var validate = validator.New()

// LoadEngineConfig reads, defaults, and validates an EngineConfig from a
// YAML file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read config %s: %w", path, err)
	}
	return ParseEngineConfig(raw)
}

// ParseEngineConfig defaults and validates an EngineConfig parsed from raw
// YAML bytes.
func ParseEngineConfig(raw []byte) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("engine: apply config defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("engine: parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	return cfg, nil
}

// Options translates the config into the EngineOptions New expects. The
// executor it sets is a new default pool of AsyncPoolSize slots; other
// collaborators (logger, collectors, idempotency checker) are left to the
// caller, since a config file cannot describe them.
func (c *EngineConfig) Options() []EngineOption {
	opts := []EngineOption{}
	if !c.LoggingEnabled {
		opts = append(opts, WithLoggingDisabled())
	}
	if c.SkipCompensation {
		opts = append(opts, WithSkipCompensation())
	}
	opts = append(opts, WithExecutor(NewDefaultPool(c.AsyncPoolSize)))
	opts = append(opts, WithDefaultStepOptions(
		WithRetries(c.MaxRetries),
		WithRetryDelay(c.RetryDelay),
		WithTimeout(c.StepTimeout),
	))
	opts = append(opts, WithCompensationPolicy(c.MaxCompensationRetries, DefaultRetryDelay, c.CompensationTimeout))
	return opts
}
