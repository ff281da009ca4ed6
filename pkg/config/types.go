package config

import (
	"time"

	"github.com/openfroyo/catalogd/pkg/telemetry"
)

// Config is the catalogd server configuration loaded from YAML.
type Config struct {
	// ListenAddress is the address the HTTP API binds to.
	ListenAddress string `yaml:"listen_address" validate:"required"`

	// CallbackPath is the route executors post callbacks to.
	CallbackPath string `yaml:"callback_path" validate:"required,startswith=/"`

	Storage   StorageConfig    `yaml:"storage"`
	Sender    SenderConfig     `yaml:"sender"`
	Processor ProcessorConfig  `yaml:"processor"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver" validate:"required,oneof=memory sqlite"`

	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `yaml:"path" validate:"required_if=Driver sqlite"`
}

// Sender types.
const (
	SenderNoop    = "noop"
	SenderWebhook = "webhook"
	SenderReject  = "reject"
)

// SenderConfig selects how work items reach the executor.
type SenderConfig struct {
	// Type is one of "noop", "webhook" or "reject".
	Type string `yaml:"type" validate:"required,oneof=noop webhook reject"`

	// URL is the executor endpoint for the webhook sender.
	URL string `yaml:"url" validate:"required_if=Type webhook,omitempty,url"`

	// Timeout bounds a single webhook request.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ProcessorConfig tunes the work item processor.
type ProcessorConfig struct {
	// PendingDeadline expires dispatched items without a callback. Zero disables expiry.
	PendingDeadline time.Duration `yaml:"pending_deadline" validate:"gte=0"`

	// SweepInterval is how often the reconciler looks for expired items.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`
}

// CatalogConfig holds the options request handlers validate against.
type CatalogConfig struct {
	// MaxFanOut caps the number of hosts created by one request.
	MaxFanOut int `yaml:"max_fan_out" validate:"gte=1"`

	DataCenters []string `yaml:"data_centers" validate:"dive,required"`
	Networks    []string `yaml:"networks" validate:"dive,required"`
	Envs        []string `yaml:"envs" validate:"dive,required"`
	Sizes       []string `yaml:"sizes" validate:"dive,required"`

	// RestartWaitInterval is the polling period when a restart request waits.
	RestartWaitInterval time.Duration `yaml:"restart_wait_interval" validate:"gte=0"`

	// RestartWaitAttempts bounds the number of polls.
	RestartWaitAttempts int `yaml:"restart_wait_attempts" validate:"gte=0"`
}

// Contains reports whether value is one of options. An empty option list accepts anything.
func Contains(options []string, value string) bool {
	if len(options) == 0 {
		return true
	}
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
