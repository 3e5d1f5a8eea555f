package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	MassSend  MassSendConfig  `mapstructure:"mass_send"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Events    EventsConfig    `mapstructure:"events"`
	Security  SecurityConfig  `mapstructure:"security"`
	Settings  SettingsConfig  `mapstructure:"settings"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AllowedOrigins are the browser origins permitted by CORS
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Storage backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StorageConfig selects the key-value backend holding persisted state
type StorageConfig struct {
	// Backend is one of "redis", "postgres" or "memory"
	Backend string `mapstructure:"backend"`
	// KeyPrefix is prepended to every persisted key
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GmailConfig holds Gmail API and OAuth2 configuration
type GmailConfig struct {
	// CredentialsJSON is a service account credentials JSON. When set, tokens are
	// always silently renewable and the OAuth client fields are ignored.
	CredentialsJSON string `mapstructure:"credentials_json"`
	// Subject is the mailbox impersonated by a service account
	Subject string `mapstructure:"subject"`
	// ClientID for OAuth2 token-based auth
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken is a bootstrap credential used when interactive authorization is requested
	RefreshToken string `mapstructure:"refresh_token"`
	// RedirectURL is the OAuth2 consent redirect
	RedirectURL string `mapstructure:"redirect_url"`
}

// SchedulerConfig holds the scheduled-send loop timings
type SchedulerConfig struct {
	DueCheckInterval time.Duration `mapstructure:"due_check_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	// StaleAfter is how far past its send time an entry may be before cleanup purges it
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// MinLeadTime is the minimum distance into the future a schedule request must target
	MinLeadTime time.Duration `mapstructure:"min_lead_time"`
	// EarlyAdmission widens the due window to absorb tick jitter
	EarlyAdmission time.Duration `mapstructure:"early_admission"`
}

// MassSendConfig holds mass-send pacing limits
type MassSendConfig struct {
	DefaultPacing time.Duration `mapstructure:"default_pacing"`
	MaxPacing     time.Duration `mapstructure:"max_pacing"`
}

// ActivityConfig holds activity log configuration
type ActivityConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// EventsConfig holds broadcast configuration
type EventsConfig struct {
	// RedisChannel is the pub/sub channel events are published to when Redis is available
	RedisChannel string `mapstructure:"redis_channel"`
}

// SecurityConfig holds API security configuration
type SecurityConfig struct {
	// APISecret signs HS256 bearer tokens. Empty disables API authentication.
	APISecret    string             `mapstructure:"api_secret"`
	TokenIssuer  string             `mapstructure:"token_issuer"`
	TokenTTL     time.Duration      `mapstructure:"token_ttl"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SendLimit  int           `mapstructure:"send_limit"`
	SendWindow time.Duration `mapstructure:"send_window"`
}

// SettingsConfig seeds user preferences that have not been stored yet
type SettingsConfig struct {
	AutoIntercept bool `mapstructure:"auto_intercept"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sendiq")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("SENDIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail at runtime
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Scheduler.DueCheckInterval <= 0 || c.Scheduler.CleanupInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if c.MassSend.MaxPacing < 0 {
		return fmt.Errorf("mass_send.max_pacing must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"https://mail.google.com"})
	v.SetDefault("server.shutdown_timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.backend", BackendRedis)
	v.SetDefault("storage.key_prefix", "sendiq:")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sendiq")
	v.SetDefault("database.user", "sendiq")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Gmail defaults
	v.SetDefault("gmail.credentials_json", "")
	v.SetDefault("gmail.subject", "")
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.redirect_url", "http://localhost:8080/oauth/callback")

	// Scheduler defaults
	v.SetDefault("scheduler.due_check_interval", "30s")
	v.SetDefault("scheduler.cleanup_interval", "5m")
	v.SetDefault("scheduler.stale_after", "1h")
	v.SetDefault("scheduler.min_lead_time", "60s")
	v.SetDefault("scheduler.early_admission", "59999ms")

	// Mass send defaults
	v.SetDefault("mass_send.default_pacing", "5ms")
	v.SetDefault("mass_send.max_pacing", "5s")

	v.SetDefault("activity.max_entries", 10)
	v.SetDefault("events.redis_channel", "sendiq:events")

	// Security defaults
	v.SetDefault("security.api_secret", "")
	v.SetDefault("security.token_issuer", "sendiq")
	v.SetDefault("security.token_ttl", "720h")
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.send_limit", 10)
	v.SetDefault("security.rate_limiting.send_window", "1m")

	v.SetDefault("settings.auto_intercept", true)
}
