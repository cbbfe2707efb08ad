// Package config loads the persistence core's operator-facing YAML
// configuration, in the same style as the teacher's harness.Scenario
// loader: strict field decoding plus an explicit post-decode validation
// pass, so a typo'd key fails loudly instead of silently defaulting.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend names a storage backend.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendDocument Backend = "document"
	BackendMongo    Backend = "mongo"
)

// Config is the top-level shape of an eventstore configuration file.
type Config struct {
	// Backend selects the persistence.Engine implementation to construct.
	Backend Backend `yaml:"backend"`

	// DSN is the backend's connection string: a SQLite file path or
	// ":memory:", a Postgres connection URL, or a MongoDB URI.
	DSN string `yaml:"dsn"`

	// Database names the MongoDB database when Backend is "mongo".
	// Ignored by the other backends.
	Database string `yaml:"database,omitempty"`

	// SnapshotThreshold is the default maxThreshold passed to
	// GetStreamsToSnapshot by the CLI's streams-to-snapshot command when
	// the operator does not override it with a flag.
	SnapshotThreshold int `yaml:"snapshot_threshold"`

	// LogLevel names a slog level: "debug", "info", "warn", or "error".
	// Load validates it; nothing in this module applies it to a logger.
	LogLevel string `yaml:"log_level,omitempty"`

	// Tracing holds OpenTelemetry exporter settings. Load accepts them;
	// nothing in this module reads them or sets up an exporter.
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Load reads and parses the YAML file at path, rejecting unknown fields so
// a misspelled key is a load error rather than a silently-ignored default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied: an
// in-memory SQLite backend, suitable for local exploration and the CLI's
// smoke tests.
func Default() Config {
	return Config{
		Backend:           BackendSQLite,
		DSN:               ":memory:",
		SnapshotThreshold: 50,
		LogLevel:          "info",
	}
}

func validate(c *Config) error {
	switch c.Backend {
	case BackendSQLite, BackendPostgres, BackendDocument, BackendMongo:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.Backend == BackendMongo && c.Database == "" {
		return fmt.Errorf("database is required for the mongo backend")
	}
	if c.SnapshotThreshold < 0 {
		return fmt.Errorf("snapshot_threshold must be >= 0")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
