package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Daovouslabs/wsgateway-go/internal/broker"
	"github.com/Daovouslabs/wsgateway-go/internal/gateway"
	"github.com/Daovouslabs/wsgateway-go/internal/httpapi"
)

// brokerKind selects the broker backend.
const (
	brokerRedis  = "redis"
	brokerMemory = "memory"
)

// fileConfig is the daemon's YAML configuration. Flags override it.
type fileConfig struct {
	Broker string             `yaml:"broker"`
	Redis  broker.RedisConfig `yaml:"redis"`
	Bridge gateway.Config     `yaml:"bridge"`
	HTTP   httpapi.Config     `yaml:"http"`
}

func defaultFileConfig() fileConfig {
	cfg := fileConfig{Broker: brokerRedis}
	cfg.Redis.SetDefaults()
	cfg.Bridge.SetDefaults()
	cfg.HTTP.SetDefaults()
	return cfg
}

// loadConfig reads the YAML file at path into the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Redis.SetDefaults()
	cfg.Bridge.SetDefaults()
	cfg.HTTP.SetDefaults()
	return cfg, nil
}

func (c fileConfig) validate() error {
	if c.Broker != brokerRedis && c.Broker != brokerMemory {
		return fmt.Errorf("unknown broker %q (want %q or %q)", c.Broker, brokerRedis, brokerMemory)
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Bridge.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}
