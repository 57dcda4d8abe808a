// Package config loads the LogLens configuration.
//
// Values are layered defaults, then an optional YAML file, then LOGLENS_*
// environment variables ("watcher.dir" is LOGLENS_WATCHER_DIR). The result
// is validated once and shared read-only by every component.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loglens/loglens/internal/auth"
	"github.com/loglens/loglens/pkg/models"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LOGLENS"

// Config holds all configuration for LogLens.
type Config struct {
	Port        int                   `mapstructure:"port"`
	Version     string                `mapstructure:"version"`
	CORSOrigins []string              `mapstructure:"cors_origins"`
	Log         LogConfig             `mapstructure:"log"`
	Watcher     WatcherConfig         `mapstructure:"watcher"`
	Pipeline    PipelineConfig        `mapstructure:"pipeline"`
	Provider    models.ProviderConfig `mapstructure:"provider"`
	ChatTimeout time.Duration         `mapstructure:"chat_timeout"`
	Auth        AuthConfig            `mapstructure:"auth"`
	RateLimit   RateLimitConfig       `mapstructure:"rate_limit"`
	Store       StoreConfig           `mapstructure:"store"`
	Sinks       SinksConfig           `mapstructure:"sinks"`
	AWS         AWSConfig             `mapstructure:"aws"`
	Telemetry   TelemetryConfig       `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type WatcherConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Dir         string        `mapstructure:"dir"`
	Recursive   bool          `mapstructure:"recursive"`
	Extensions  []string      `mapstructure:"extensions"`
	Ignore      []string      `mapstructure:"ignore"`
	Debounce    time.Duration `mapstructure:"debounce"`
	QueueSize   int           `mapstructure:"queue_size"`
	MaxFileSize int64         `mapstructure:"max_file_size"`
	InitialScan bool          `mapstructure:"initial_scan"`
}

type PipelineConfig struct {
	QueueSize int  `mapstructure:"queue_size"`
	Workers   int  `mapstructure:"workers"`
	Narrative bool `mapstructure:"narrative"`
}

type AuthConfig struct {
	// Header is an extra header checked before X-API-Key and Authorization.
	Header string `mapstructure:"header"`

	// KeyHashes are sha256 hex digests or bcrypt hashes.
	KeyHashes []string `mapstructure:"key_hashes"`

	// Keys are plaintext keys. Load hashes them into KeyHashes and clears
	// this field.
	Keys []string `mapstructure:"keys"`
}

type RateLimitConfig struct {
	Limit         int           `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	Backend       string        `mapstructure:"backend"` // memory | redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | memory
	Path   string `mapstructure:"path"`

	// Retention is the maximum age of a chat log entry. Zero keeps
	// entries forever.
	Retention         time.Duration `mapstructure:"retention"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	ArchiveDir        string        `mapstructure:"archive_dir"`
	ArchiveCompress   bool          `mapstructure:"archive_compress"`
}

type SinksConfig struct {
	FeedSize      int    `mapstructure:"feed_size"`
	NATSURL       string `mapstructure:"nats_url"`
	NATSSubject   string `mapstructure:"nats_subject"`
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// SetDefaults registers every key with its default value. Registering all
// keys is what lets AutomaticEnv resolve nested environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("version", "0.1.0")
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.dir", "./logs")
	v.SetDefault("watcher.recursive", false)
	v.SetDefault("watcher.extensions", []string{".log", ".json", ".txt"})
	v.SetDefault("watcher.ignore", []string{})
	v.SetDefault("watcher.debounce", 500*time.Millisecond)
	v.SetDefault("watcher.queue_size", 64)
	v.SetDefault("watcher.max_file_size", int64(10<<20))
	v.SetDefault("watcher.initial_scan", false)

	v.SetDefault("pipeline.queue_size", 128)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.narrative", false)

	v.SetDefault("provider.mode", string(models.ProviderLocal))
	v.SetDefault("provider.local_model_path", models.DefaultLocalModelPath)
	v.SetDefault("provider.local_endpoint", "http://localhost:11434")
	v.SetDefault("provider.local_transport", string(models.TransportHTTP))
	v.SetDefault("provider.nats_url", "nats://localhost:4222")
	v.SetDefault("provider.remote_api_key", "")
	v.SetDefault("provider.remote_api_key_secret", "")
	v.SetDefault("provider.remote_endpoint", "https://api.openai.com/v1")
	v.SetDefault("provider.remote_model", "gpt-4o-mini")
	v.SetDefault("provider.max_tokens", models.DefaultMaxTokens)
	v.SetDefault("chat_timeout", 60*time.Second)

	v.SetDefault("auth.header", "X-API-Key")
	v.SetDefault("auth.key_hashes", []string{})
	v.SetDefault("auth.keys", []string{})

	v.SetDefault("rate_limit.limit", 10)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.redis_addr", "localhost:6379")
	v.SetDefault("rate_limit.redis_password", "")
	v.SetDefault("rate_limit.redis_db", 0)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./loglens.db")
	v.SetDefault("store.retention", time.Duration(0))
	v.SetDefault("store.retention_interval", time.Hour)
	v.SetDefault("store.archive_dir", "")
	v.SetDefault("store.archive_compress", true)

	v.SetDefault("sinks.feed_size", 200)
	v.SetDefault("sinks.nats_url", "")
	v.SetDefault("sinks.nats_subject", "loglens.summaries")
	v.SetDefault("sinks.webhook_url", "")
	v.SetDefault("sinks.webhook_secret", "")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "loglens")
}

// LoadOption adjusts the viper instance before decoding, typically to
// bind command-line flags.
type LoadOption func(*viper.Viper) error

// Load reads configuration from path (or ./loglens.yaml when path is
// empty and the file exists) and the environment, then validates it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("loglens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	for _, o := range opts {
		if err := o(v); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.hashPlaintextKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) hashPlaintextKeys() {
	for _, k := range c.Auth.Keys {
		if k = strings.TrimSpace(k); k != "" {
			c.Auth.KeyHashes = append(c.Auth.KeyHashes, auth.HashKey(k))
		}
	}
	c.Auth.Keys = nil
}

// Validate normalizes aliases and rejects settings the service cannot
// start with. Errors are *models.ConfigurationError.
func (c *Config) Validate() error {
	mode, ok := models.ParseProviderMode(string(c.Provider.Mode))
	if !ok {
		return &models.ConfigurationError{Field: "provider.mode", Message: fmt.Sprintf("unknown mode %q", c.Provider.Mode)}
	}
	c.Provider.Mode = mode

	switch t := models.LocalTransport(strings.ToLower(string(c.Provider.LocalTransport))); t {
	case "":
		c.Provider.LocalTransport = models.TransportHTTP
	case models.TransportHTTP, models.TransportNATS:
		c.Provider.LocalTransport = t
	default:
		return &models.ConfigurationError{Field: "provider.local_transport", Message: fmt.Sprintf("unknown transport %q", t)}
	}

	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = models.DefaultMaxTokens
	}
	if c.ChatTimeout <= 0 {
		return &models.ConfigurationError{Field: "chat_timeout", Message: "must be positive"}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &models.ConfigurationError{Field: "port", Message: fmt.Sprintf("out of range: %d", c.Port)}
	}
	if c.RateLimit.Limit <= 0 {
		return &models.ConfigurationError{Field: "rate_limit.limit", Message: "must be positive"}
	}
	if c.RateLimit.Window <= 0 {
		return &models.ConfigurationError{Field: "rate_limit.window", Message: "must be positive"}
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return &models.ConfigurationError{Field: "rate_limit.backend", Message: fmt.Sprintf("unknown backend %q", c.RateLimit.Backend)}
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return &models.ConfigurationError{Field: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)}
	}
	if c.Store.Retention < 0 {
		return &models.ConfigurationError{Field: "store.retention", Message: "must not be negative"}
	}
	if c.Store.Retention > 0 && c.Store.RetentionInterval <= 0 {
		return &models.ConfigurationError{Field: "store.retention_interval", Message: "must be positive"}
	}
	if c.Pipeline.Workers <= 0 {
		return &models.ConfigurationError{Field: "pipeline.workers", Message: "must be positive"}
	}
	if c.Pipeline.QueueSize <= 0 {
		return &models.ConfigurationError{Field: "pipeline.queue_size", Message: "must be positive"}
	}
	return nil
}
