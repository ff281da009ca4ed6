package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// Defaults applied before the YAML document is decoded.
const (
	DefaultListenAddress       = ":8080"
	DefaultCallbackPath        = "/webhook/callback"
	DefaultStoragePath         = "./data/catalogd.db"
	DefaultSenderTimeout       = 30 * time.Second
	DefaultSweepInterval       = time.Minute
	DefaultMaxFanOut           = 10
	DefaultRestartWaitInterval = 20 * time.Second
	DefaultRestartWaitAttempts = 30
)

var validate = validator.New()

// Default returns a configuration that runs entirely in memory with the noop sender.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		CallbackPath:  DefaultCallbackPath,
		Storage: StorageConfig{
			Driver: "memory",
			Path:   DefaultStoragePath,
		},
		Sender: SenderConfig{
			Type:    SenderNoop,
			Timeout: DefaultSenderTimeout,
		},
		Processor: ProcessorConfig{
			SweepInterval: DefaultSweepInterval,
		},
		Catalog: CatalogConfig{
			MaxFanOut:           DefaultMaxFanOut,
			DataCenters:         []string{"dc1", "dc2"},
			Networks:            []string{"prod", "qa"},
			Envs:                []string{"java8", "java11", "node"},
			Sizes:               []string{"small", "medium", "large"},
			RestartWaitInterval: DefaultRestartWaitInterval,
			RestartWaitAttempts: DefaultRestartWaitAttempts,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the telemetry settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config validation failed: %s failed on %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
