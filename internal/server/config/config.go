// Package config loads the server configuration from defaults, an
// optional YAML file and DRUMBEAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
	BackendSPARQL = "sparql"
)

// Config represents the complete server configuration
type Config struct {
	Server        ServerConfig  `yaml:"server"`
	BaseURI       string        `yaml:"baseUri"`
	MetadataGraph string        `yaml:"metadataGraph"`
	Store         StoreConfig   `yaml:"store"`
	Uploads       UploadsConfig `yaml:"uploads"`
	Log           LogConfig     `yaml:"log"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Tracing       TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists allowed origins; empty disables CORS handling.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// StoreConfig selects and configures the triple store
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Neo4j   Neo4jConfig  `yaml:"neo4j"`
	SPARQL  SPARQLConfig `yaml:"sparql"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type SPARQLConfig struct {
	QueryEndpoint  string        `yaml:"queryEndpoint"`
	UpdateEndpoint string        `yaml:"updateEndpoint"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxFailures    uint32        `yaml:"maxFailures"`
	OpenTimeout    time.Duration `yaml:"openTimeout"`
}

// UploadsConfig controls the upload pipeline
type UploadsConfig struct {
	Dir            string        `yaml:"dir"`
	Save           bool          `yaml:"save"`
	ServerFileRoot string        `yaml:"serverFileRoot"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	MaxBytes       int64         `yaml:"maxBytes"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig points span export at an OTLP/gRPC collector.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		BaseURI: "http://localhost:8080/drumbeat/",
		Store: StoreConfig{
			Backend: BackendMemory,
			SQLite:  SQLiteConfig{Path: "drumbeat.db"},
			Neo4j: Neo4jConfig{
				URI:      "bolt://localhost:7687",
				Username: "neo4j",
				Password: "password",
				Database: "neo4j",
			},
			SPARQL: SPARQLConfig{
				Timeout:     30 * time.Second,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Uploads: UploadsConfig{
			Dir:          "uploads",
			FetchTimeout: 60 * time.Second,
			MaxBytes:     256 << 20,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{Endpoint: "localhost:4317", Insecure: true},
	}
}

// Load reads path over the defaults (when path is not empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(cfg.BaseURI, "/") {
		cfg.BaseURI += "/"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DRUMBEAT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("DRUMBEAT_ADDRESS", &c.Server.Address)
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Address = ":" + v
	}
	duration("DRUMBEAT_READ_TIMEOUT", &c.Server.ReadTimeout)
	duration("DRUMBEAT_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	if v, ok := lookup("DRUMBEAT_CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	str("DRUMBEAT_BASE_URI", &c.BaseURI)
	str("DRUMBEAT_METADATA_GRAPH", &c.MetadataGraph)

	str("DRUMBEAT_STORE", &c.Store.Backend)
	str("DRUMBEAT_SQLITE_PATH", &c.Store.SQLite.Path)
	str("NEO4J_URI", &c.Store.Neo4j.URI)
	str("NEO4J_USER", &c.Store.Neo4j.Username)
	str("NEO4J_PASSWORD", &c.Store.Neo4j.Password)
	str("NEO4J_DATABASE", &c.Store.Neo4j.Database)
	str("DRUMBEAT_SPARQL_QUERY", &c.Store.SPARQL.QueryEndpoint)
	str("DRUMBEAT_SPARQL_UPDATE", &c.Store.SPARQL.UpdateEndpoint)
	str("DRUMBEAT_SPARQL_USER", &c.Store.SPARQL.Username)
	str("DRUMBEAT_SPARQL_PASSWORD", &c.Store.SPARQL.Password)
	duration("DRUMBEAT_SPARQL_TIMEOUT", &c.Store.SPARQL.Timeout)

	str("DRUMBEAT_UPLOADS_DIR", &c.Uploads.Dir)
	boolean("DRUMBEAT_SAVE_UPLOADS", &c.Uploads.Save)
	str("DRUMBEAT_SERVER_FILE_ROOT", &c.Uploads.ServerFileRoot)
	duration("DRUMBEAT_FETCH_TIMEOUT", &c.Uploads.FetchTimeout)
	integer("DRUMBEAT_MAX_UPLOAD_BYTES", &c.Uploads.MaxBytes)

	str("DRUMBEAT_LOG_LEVEL", &c.Log.Level)
	boolean("DRUMBEAT_LOG_DEVELOPMENT", &c.Log.Development)
	boolean("DRUMBEAT_METRICS", &c.Metrics.Enabled)
	boolean("DRUMBEAT_TRACING", &c.Tracing.Enabled)
	str("DRUMBEAT_TRACING_ENDPOINT", &c.Tracing.Endpoint)
	boolean("DRUMBEAT_TRACING_INSECURE", &c.Tracing.Insecure)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("baseUri must be an absolute URI, got %q", c.BaseURI)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case BackendNeo4j:
		if c.Store.Neo4j.URI == "" {
			return fmt.Errorf("store.neo4j.uri is required for the neo4j backend")
		}
	case BackendSPARQL:
		if c.Store.SPARQL.QueryEndpoint == "" || c.Store.SPARQL.UpdateEndpoint == "" {
			return fmt.Errorf("store.sparql.queryEndpoint and updateEndpoint are required for the sparql backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Uploads.Save && c.Uploads.Dir == "" {
		return fmt.Errorf("uploads.dir is required when uploads.save is set")
	}
	if c.Uploads.MaxBytes < 0 {
		return fmt.Errorf("uploads.maxBytes must not be negative")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}
