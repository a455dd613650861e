// Package config loads the service configuration from a yaml or json file in
// the working directory. The file holds one subtree per environment; the
// active environment is selected with the DINO_ENVIRONMENT variable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the loader.
const (
	EnvKeyEnvironment = "DINO_ENVIRONMENT"
	EnvKeyConfig      = "DINO_CONFIG"
)

// Defaults.
const (
	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"
	DefaultRedisHost = "localhost:6379"
)

var defaultPaths = []string{"dino.yaml", "dino.json"}

// Storage configures the durable history backend.
type Storage struct {
	Type        string   `yaml:"type" json:"type"` // cassandra, redis or mock
	Hosts       []string `yaml:"host" json:"host"`
	Replication int      `yaml:"replication" json:"replication"`
	Strategy    string   `yaml:"strategy" json:"strategy"`
	Keyspace    string   `yaml:"keyspace" json:"keyspace"`
}

// Stats configures the statsd gauge reporter.
type Stats struct {
	Host        string `yaml:"host" json:"host"`
	Prefix      string `yaml:"prefix" json:"prefix"`
	Granularity int    `yaml:"granularity" json:"granularity"` // seconds
}

// Config is the typed configuration record. Unknown keys from the file are
// preserved in Unknown but not interpreted.
type Config struct {
	LogLevel   string  `yaml:"log_level" json:"log_level"`
	LogFormat  string  `yaml:"log_format" json:"log_format"`
	RedisHost  string  `yaml:"redis_host" json:"redis_host"` // host[:port], or "mock" for in-memory
	Testing    bool    `yaml:"testing" json:"testing"`
	MaxHistory int     `yaml:"max_history" json:"max_history"`
	Storage    Storage `yaml:"storage" json:"storage"`
	Stats      Stats   `yaml:"stats" json:"stats"`

	// Environment is injected by the loader, overwriting any file value.
	Environment string `yaml:"environment" json:"environment"`

	Unknown map[string]any `yaml:"-" json:"-"`
}

// Default returns a configuration suitable for local development and tests:
// in-memory KV, in-memory storage, no stats reporter.
func Default() *Config {
	return &Config{
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		RedisHost:   "mock",
		Testing:     true,
		MaxHistory:  -1,
		Storage:     Storage{Type: "mock"},
		Environment: "default",
	}
}

// Load reads the configuration file and returns the subtree for the active
// environment. A missing DINO_ENVIRONMENT is an error when a config file
// exists; a missing config file falls back to Default.
func Load() (*Config, error) {
	paths := defaultPaths
	if p, ok := os.LookupEnv(EnvKeyConfig); ok {
		paths = []string{p}
	}

	var path string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return Default(), nil
	}

	env := os.Getenv(EnvKeyEnvironment)
	if env == "" {
		return nil, fmt.Errorf("config file %s found but %s is not set", path, EnvKeyEnvironment)
	}

	return loadFile(path, env)
}

func loadFile(path, env string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	environments := make(map[string]map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &environments)
	case ".json":
		err = json.Unmarshal(raw, &environments)
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	tree, ok := environments[env]
	if !ok {
		return nil, fmt.Errorf("no environment %q in config file %s", env, path)
	}

	cfg, err := fromTree(tree)
	if err != nil {
		return nil, err
	}
	cfg.Environment = env
	return cfg, nil
}

// fromTree maps one environment subtree onto the typed record. Re-encoding
// through yaml keeps the two file formats on a single code path.
func fromTree(tree map[string]any) (*Config, error) {
	known := map[string]bool{
		"log_level": true, "log_format": true, "redis_host": true,
		"testing": true, "max_history": true, "storage": true, "stats": true,
		"environment": true,
	}

	encoded, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config subtree: %w", err)
	}

	cfg := &Config{
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
		RedisHost:  DefaultRedisHost,
		MaxHistory: -1,
	}
	if err := yaml.Unmarshal(encoded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config subtree: %w", err)
	}

	for key, value := range tree {
		if known[key] {
			continue
		}
		if cfg.Unknown == nil {
			cfg.Unknown = make(map[string]any)
		}
		cfg.Unknown[key] = value
	}
	return cfg, nil
}

// RedisAddr splits redis_host into an address usable by the client, applying
// the default port when none is given.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" || c.RedisHost == "mock" {
		return c.RedisHost
	}
	if strings.Contains(c.RedisHost, ":") {
		return c.RedisHost
	}
	return c.RedisHost + ":6379"
}

// Keyspace is the column-store keyspace for this deployment; it defaults to
// the environment name.
func (c *Config) Keyspace() string {
	if c.Storage.Keyspace != "" {
		return c.Storage.Keyspace
	}
	if c.Environment != "" {
		return c.Environment
	}
	return "dino"
}
