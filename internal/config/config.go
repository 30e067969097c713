// Package config loads psurops settings with viper from .psurops/config.{json,yaml,toml}
// and PSUROPS_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace configuration directory.
const DirName = ".psurops"

// Config represents the complete psurops configuration
type Config struct {
	Version int `json:"version" yaml:"version" toml:"version" mapstructure:"version"`

	Storage StorageConfig `json:"storage" yaml:"storage" toml:"storage" mapstructure:"storage"`
	Server  ServerConfig  `json:"server" yaml:"server" toml:"server" mapstructure:"server"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify" toml:"notify" mapstructure:"notify"`
	Export  ExportConfig  `json:"export" yaml:"export" toml:"export" mapstructure:"export"`
	Ingest  IngestConfig  `json:"ingest" yaml:"ingest" toml:"ingest" mapstructure:"ingest"`
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging" mapstructure:"logging"`
}

// StorageConfig selects and tunes the record backend
type StorageConfig struct {
	Driver    string `json:"driver" yaml:"driver" toml:"driver" mapstructure:"driver"` // sqlite | memory | postgres
	Path      string `json:"path" yaml:"path" toml:"path" mapstructure:"path"`
	DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty" toml:"dsn,omitempty" mapstructure:"dsn"`
	TimeoutMs int    `json:"timeoutMs" yaml:"timeoutMs" toml:"timeoutMs" mapstructure:"timeoutMs"`
	SeedFile  string `json:"seedFile,omitempty" yaml:"seedFile,omitempty" toml:"seedFile,omitempty" mapstructure:"seedFile"`
}

// Timeout returns the per-call backend timeout.
func (s StorageConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ServerConfig contains HTTP transport settings
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host" toml:"host" mapstructure:"host"`
	Port           int      `json:"port" yaml:"port" toml:"port" mapstructure:"port"`
	AuthTokenHash  string   `json:"authTokenHash,omitempty" yaml:"authTokenHash,omitempty" toml:"authTokenHash,omitempty" mapstructure:"authTokenHash"`
	Compress       bool     `json:"compress" yaml:"compress" toml:"compress" mapstructure:"compress"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins" toml:"allowedOrigins" mapstructure:"allowedOrigins"`
	// RateLimit is requests per minute per client; zero disables limiting.
	RateLimit      int      `json:"rateLimit" yaml:"rateLimit" toml:"rateLimit" mapstructure:"rateLimit"`
	RateBurst      int      `json:"rateBurst" yaml:"rateBurst" toml:"rateBurst" mapstructure:"rateBurst"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NotifyConfig configures change-event fan-out
type NotifyConfig struct {
	QueueSize int             `json:"queueSize" yaml:"queueSize" toml:"queueSize" mapstructure:"queueSize"`
	Redis     RedisConfig     `json:"redis" yaml:"redis" toml:"redis" mapstructure:"redis"`
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt" toml:"mqtt" mapstructure:"mqtt"`
	Webhooks  []WebhookConfig `json:"webhooks" yaml:"webhooks" toml:"webhooks" mapstructure:"webhooks"`
}

// RedisConfig publishes events to a Redis stream
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" toml:"enabled" mapstructure:"enabled"`
	Addr     string `json:"addr" yaml:"addr" toml:"addr" mapstructure:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" toml:"db" mapstructure:"db"`
	Stream   string `json:"stream" yaml:"stream" toml:"stream" mapstructure:"stream"`
	MaxLen   int64  `json:"maxLen" yaml:"maxLen" toml:"maxLen" mapstructure:"maxLen"`
}

// MQTTConfig publishes events to an MQTT broker
type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" toml:"enabled" mapstructure:"enabled"`
	Broker   string `json:"broker" yaml:"broker" toml:"broker" mapstructure:"broker"`
	ClientID string `json:"clientId" yaml:"clientId" toml:"clientId" mapstructure:"clientId"`
	Topic    string `json:"topic" yaml:"topic" toml:"topic" mapstructure:"topic"`
	QoS      int    `json:"qos" yaml:"qos" toml:"qos" mapstructure:"qos"`
	Username string `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty" mapstructure:"password"`
}

// WebhookConfig registers one signed HTTP callback
type WebhookConfig struct {
	ID         string            `json:"id" yaml:"id" toml:"id" mapstructure:"id"`
	URL        string            `json:"url" yaml:"url" toml:"url" mapstructure:"url"`
	Secret     string            `json:"secret,omitempty" yaml:"secret,omitempty" toml:"secret,omitempty" mapstructure:"secret"`
	Events     []string          `json:"events" yaml:"events" toml:"events" mapstructure:"events"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty" mapstructure:"headers"`
	TimeoutMs  int               `json:"timeoutMs" yaml:"timeoutMs" toml:"timeoutMs" mapstructure:"timeoutMs"`
	MaxRetries int               `json:"maxRetries" yaml:"maxRetries" toml:"maxRetries" mapstructure:"maxRetries"`
}

// ExportConfig controls where exports and snapshots are written
type ExportConfig struct {
	Gzip bool       `json:"gzip" yaml:"gzip" toml:"gzip" mapstructure:"gzip"`
	Blob BlobConfig `json:"blob" yaml:"blob" toml:"blob" mapstructure:"blob"`
}

// BlobConfig selects the export sink
type BlobConfig struct {
	Driver    string `json:"driver" yaml:"driver" toml:"driver" mapstructure:"driver"` // fs | s3
	Dir       string `json:"dir" yaml:"dir" toml:"dir" mapstructure:"dir"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty" mapstructure:"bucket"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty" mapstructure:"region"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty" mapstructure:"prefix"`
	PathStyle bool   `json:"pathStyle" yaml:"pathStyle" toml:"pathStyle" mapstructure:"pathStyle"`
}

// IngestConfig tunes spreadsheet import
type IngestConfig struct {
	ColumnsFile string `json:"columnsFile,omitempty" yaml:"columnsFile,omitempty" toml:"columnsFile,omitempty" mapstructure:"columnsFile"`
	Sheet       string `json:"sheet,omitempty" yaml:"sheet,omitempty" toml:"sheet,omitempty" mapstructure:"sheet"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" toml:"level" mapstructure:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Driver:    "sqlite",
			Path:      filepath.Join(DirName, "psurops.db"),
			TimeoutMs: 5000,
		},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8765,
			Compress:       true,
			AllowedOrigins: []string{"*"},
			RateBurst:      10,
		},
		Notify: NotifyConfig{
			QueueSize: 64,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Stream: "psurops:events",
				MaxLen: 10000,
			},
			MQTT: MQTTConfig{
				Broker:   "tcp://localhost:1883",
				ClientID: "psurops",
				Topic:    "psurops/events",
				QoS:      1,
			},
		},
		Export: ExportConfig{
			Blob: BlobConfig{
				Driver: "fs",
				Dir:    filepath.Join(DirName, "exports"),
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// envKeys are the settings that may be overridden through PSUROPS_* variables.
var envKeys = []string{
	"storage.driver", "storage.path", "storage.dsn", "storage.timeoutMs", "storage.seedFile",
	"server.host", "server.port", "server.authTokenHash", "server.compress", "server.rateLimit",
	"notify.queueSize", "notify.redis.enabled", "notify.redis.addr", "notify.redis.password",
	"notify.mqtt.enabled", "notify.mqtt.broker",
	"export.gzip", "export.blob.driver", "export.blob.dir", "export.blob.bucket", "export.blob.region", "export.blob.endpoint",
	"ingest.columnsFile", "logging.level", "logging.file",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PSUROPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// LoadConfig loads <root>/.psurops/config.{json,yaml,toml}. A missing file
// yields the defaults, still subject to environment overrides.
func LoadConfig(root string) (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(root, DirName))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, err
		}
	}
	return decode(v)
}

// LoadFile loads an explicit configuration file; the format follows the extension.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as JSON, YAML or TOML depending on
// the extension (JSON when there is none).
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return &ConfigError{Field: "storage.path", Message: "required for the sqlite driver"}
		}
	case "postgres", "memory":
	default:
		return &ConfigError{Field: "storage.driver", Message: "must be sqlite, memory or postgres"}
	}
	if c.Storage.TimeoutMs <= 0 {
		return &ConfigError{Field: "storage.timeoutMs", Message: "must be positive"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "out of range"}
	}
	if c.Notify.QueueSize <= 0 {
		return &ConfigError{Field: "notify.queueSize", Message: "must be positive"}
	}
	switch c.Export.Blob.Driver {
	case "fs", "":
	case "s3":
		if c.Export.Blob.Bucket == "" {
			return &ConfigError{Field: "export.blob.bucket", Message: "required for the s3 driver"}
		}
	default:
		return &ConfigError{Field: "export.blob.driver", Message: "must be fs or s3"}
	}
	for i, w := range c.Notify.Webhooks {
		if w.URL == "" {
			return &ConfigError{Field: fmt.Sprintf("notify.webhooks[%d].url", i), Message: "required"}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
