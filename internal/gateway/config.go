package gateway

import "errors"

var (
	// ErrEmptyChannel is returned when no broker channel is configured.
	ErrEmptyChannel = errors.New("broker channel cannot be empty")
)

const (
	defaultChannel   = "wsgateway"
	defaultWorkers   = 8
	defaultQueueSize = 256
)

// Config configures a Bridge.
type Config struct {
	// Channel is the single broker channel shared by every gateway
	// instance of the deployment.
	Channel string `yaml:"channel"`

	// Workers is the size of the delivery worker pool.
	Workers int `yaml:"workers"`

	// QueueSize bounds the delivery queue; when full, draining the
	// broker blocks until workers catch up.
	QueueSize int `yaml:"queue_size"`
}

// NewConfig creates a Bridge configuration with safe defaults.
func NewConfig(channel string) *Config {
	c := &Config{Channel: channel}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields with safe defaults.
func (c *Config) SetDefaults() {
	if c.Channel == "" {
		c.Channel = defaultChannel
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Channel == "" {
		return ErrEmptyChannel
	}
	return nil
}
