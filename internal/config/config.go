package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers
const (
	StorageDriverFile    = "file"
	StorageDriverMongoDB = "mongodb"
	StorageDriverRedis   = "redis"
)

// BackendConfig holds Submission Backend connection settings
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MTLSConfig holds client certificate settings for the backend connection
type MTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CACert     string `mapstructure:"ca_cert"`
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	ServerName string `mapstructure:"server_name"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI                string        `mapstructure:"uri"`
	Database           string        `mapstructure:"database"`
	Collection         string        `mapstructure:"collection"`
	CertificateKeyFile string        `mapstructure:"certificate_key_file"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxPoolSize        int           `mapstructure:"max_pool_size"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects where local state (history, theme) is persisted
type StorageConfig struct {
	Driver  string        `mapstructure:"driver"`
	Dir     string        `mapstructure:"dir"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// HistoryConfig holds history retention
type HistoryConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

// FeedConfig holds the size of the visible result feed
type FeedConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

// ServerMTLSConfig holds mTLS configuration for the local API
type ServerMTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CACert     string `mapstructure:"ca_cert"`
	ServerCert string `mapstructure:"server_cert"`
	ServerKey  string `mapstructure:"server_key"`
	ClientAuth string `mapstructure:"client_auth"` // require, request, or none
}

// ServeConfig holds local HTTP API settings
type ServeConfig struct {
	ListenAddress   string           `mapstructure:"listen_address"`
	ReadTimeout     time.Duration    `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration    `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
	MTLS            ServerMTLSConfig `mapstructure:"mtls"`
}

// FollowConfig holds agent-file follow mode settings
type FollowConfig struct {
	MaxLines  int           `mapstructure:"max_lines"`
	MaxWait   time.Duration `mapstructure:"max_wait"`
	QueueSize int           `mapstructure:"queue_size"`
	StateFile string        `mapstructure:"state_file"`
	Service   string        `mapstructure:"service"`
	Source    string        `mapstructure:"source"`
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Config represents the complete forwardog configuration
type Config struct {
	Backend   BackendConfig `mapstructure:"backend"`
	MTLS      MTLSConfig    `mapstructure:"mtls"`
	Storage   StorageConfig `mapstructure:"storage"`
	History   HistoryConfig `mapstructure:"history"`
	Feed      FeedConfig    `mapstructure:"feed"`
	Serve     ServeConfig   `mapstructure:"serve"`
	Follow    FollowConfig  `mapstructure:"follow"`
	Tracing   TracingConfig `mapstructure:"tracing"`
	Theme     string        `mapstructure:"theme"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

// DefaultConfigPath returns ~/.config/forwardog/config.yaml (or the platform equivalent)
func DefaultConfigPath() string {
	return filepath.Join(stateDir(), "config.yaml")
}

// ResolvePath returns flagValue when set, otherwise the default path if a
// file exists there, otherwise "" (defaults and environment only).
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat(DefaultConfigPath()); err == nil {
		return DefaultConfigPath()
	}
	return ""
}

// Load reads the configuration. An empty configPath skips the file and uses
// defaults plus FORWARDOG_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("forwardog")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := stateDir()

	// Set defaults
	v.SetDefault("backend.url", "http://127.0.0.1:8000")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("mtls.enabled", false)
	v.SetDefault("mtls.ca_cert", "")
	v.SetDefault("mtls.client_cert", "")
	v.SetDefault("mtls.client_key", "")
	v.SetDefault("mtls.server_name", "")
	v.SetDefault("storage.driver", StorageDriverFile)
	v.SetDefault("storage.dir", dir)
	v.SetDefault("storage.mongodb.uri", "")
	v.SetDefault("storage.mongodb.database", "forwardog")
	v.SetDefault("storage.mongodb.collection", "local_state")
	v.SetDefault("storage.mongodb.certificate_key_file", "")
	v.SetDefault("storage.mongodb.timeout", "10s")
	v.SetDefault("storage.mongodb.max_pool_size", 10)
	v.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "forwardog:")
	v.SetDefault("history.max_items", 100)
	v.SetDefault("feed.max_items", 20)
	v.SetDefault("serve.listen_address", "127.0.0.1:8080")
	v.SetDefault("serve.read_timeout", "30s")
	v.SetDefault("serve.write_timeout", "60s")
	v.SetDefault("serve.shutdown_timeout", "30s")
	v.SetDefault("serve.mtls.enabled", false)
	v.SetDefault("serve.mtls.ca_cert", "")
	v.SetDefault("serve.mtls.server_cert", "")
	v.SetDefault("serve.mtls.server_key", "")
	v.SetDefault("serve.mtls.client_auth", "require")
	v.SetDefault("follow.max_lines", 50)
	v.SetDefault("follow.max_wait", "5s")
	v.SetDefault("follow.queue_size", 1000)
	v.SetDefault("follow.state_file", filepath.Join(dir, "follow-state.json"))
	v.SetDefault("follow.service", "forwardog")
	v.SetDefault("follow.source", "forwardog")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("theme", "dark")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks required fields and enumerated values
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if !strings.HasPrefix(c.Backend.URL, "http://") && !strings.HasPrefix(c.Backend.URL, "https://") {
		return fmt.Errorf("backend.url must start with http:// or https://")
	}
	if c.MTLS.Enabled {
		if c.MTLS.CACert == "" || c.MTLS.ClientCert == "" || c.MTLS.ClientKey == "" {
			return fmt.Errorf("mTLS certificates are required when mtls is enabled")
		}
	}

	switch c.Storage.Driver {
	case StorageDriverFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
	case StorageDriverMongoDB:
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required for the mongodb driver")
		}
	case StorageDriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of file, mongodb, redis (got %q)", c.Storage.Driver)
	}

	if c.History.MaxItems <= 0 {
		return fmt.Errorf("history.max_items must be positive")
	}
	if c.Feed.MaxItems <= 0 {
		return fmt.Errorf("feed.max_items must be positive")
	}
	if c.Theme != "light" && c.Theme != "dark" {
		return fmt.Errorf("theme must be light or dark (got %q)", c.Theme)
	}
	if c.Serve.MTLS.Enabled {
		if c.Serve.MTLS.CACert == "" || c.Serve.MTLS.ServerCert == "" || c.Serve.MTLS.ServerKey == "" {
			return fmt.Errorf("mTLS certificates are required when serve.mtls is enabled")
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

func stateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "forwardog")
	}
	return filepath.Join(dir, "forwardog")
}
