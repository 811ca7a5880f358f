// Package config loads the stagepipe CLI configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/davidroman0O/stagepipe"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "stagepipe.yaml"

// Config is the CLI configuration.
type Config struct {
	// Store is the SQLite database holding saved pipelines.
	Store string `yaml:"store"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	Worker   Worker `yaml:"worker"`
	// MetricsAddress is where serve-worker exposes /metrics. Empty disables it.
	MetricsAddress string `yaml:"metrics_address"`
}

// Worker selects where asynchronous runs execute.
type Worker struct {
	Type        string   `yaml:"type"`
	GRPCAddress string   `yaml:"grpc_address"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Store:    "stagepipe.db",
		LogLevel: "info",
		Worker: Worker{
			Type:        string(stagepipe.WorkerGoroutine),
			GRPCAddress: "localhost:50061",
		},
	}
}

// Load reads the configuration at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("STAGEPIPE_STORE"); v != "" {
		c.Store = v
	}
	if v := getenv("STAGEPIPE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("STAGEPIPE_WORKER"); v != "" {
		c.Worker.Type = v
	}
	if getenv("STAGEPIPE_GRPC_ADDRESS") != "" || getenv("STAGEPIPE_GRPC_PORT") != "" {
		c.Worker.GRPCAddress = stagepipe.GRPCAddressFromEnv()
	}
	if v := getenv("STAGEPIPE_METRICS_ADDRESS"); v != "" {
		c.MetricsAddress = v
	}
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	if _, err := stagepipe.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := stagepipe.ParseWorkerType(c.Worker.Type); err != nil {
		return err
	}
	return nil
}

// WorkerConfig converts the worker section for stagepipe.NewExecutor.
func (c Config) WorkerConfig(logger stagepipe.Logger) (stagepipe.WorkerConfig, error) {
	t, err := stagepipe.ParseWorkerType(c.Worker.Type)
	if err != nil {
		return stagepipe.WorkerConfig{}, err
	}
	return stagepipe.WorkerConfig{
		Type:        t,
		Command:     c.Worker.Command,
		Args:        c.Worker.Args,
		GRPCAddress: c.Worker.GRPCAddress,
		Logger:      logger,
	}, nil
}
