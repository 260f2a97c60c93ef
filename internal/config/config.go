package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete todohub configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP and websocket listener
type ServerConfig struct {
	// Addr is the listen address (default: ":3000")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// WSPath is the path of the collaboration websocket endpoint
	WSPath string `mapstructure:"ws_path" yaml:"ws_path"`
	// AllowedOrigins are glob patterns for the websocket Origin header.
	// Requests without an Origin header are always accepted.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// SendQueueSize is the number of outbound frames buffered per connection
	// before further frames are dropped
	SendQueueSize int `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	// ReadLimitBytes caps the size of one inbound websocket frame
	ReadLimitBytes int64 `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// Mode is the HTTP router mode
	// Options: "release", "debug", "test"
	Mode string `mapstructure:"mode" yaml:"mode"`
}

// AuthConfig controls credential issuance
type AuthConfig struct {
	// Secret signs credentials. Required by serve and token.
	Secret string `mapstructure:"secret" yaml:"secret"`
	// TokenTTL is how long an issued credential stays valid
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	// Issuer is written to and required in the iss claim
	Issuer string `mapstructure:"issuer" yaml:"issuer"`
}

// RedisConfig controls the persistence connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// KeyPrefix namespaces every key written
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level to record
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			WSPath:          "/ws",
			AllowedOrigins:  []string{"*"},
			SendQueueSize:   64,
			ReadLimitBytes:  64 << 10,
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		Auth: AuthConfig{
			TokenTTL: 365 * 24 * time.Hour,
			Issuer:   "todohub",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "todohub",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.ws_path", defaults.Server.WSPath)
	viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	viper.SetDefault("server.send_queue_size", defaults.Server.SendQueueSize)
	viper.SetDefault("server.read_limit_bytes", defaults.Server.ReadLimitBytes)
	viper.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	viper.SetDefault("server.mode", defaults.Server.Mode)

	// Auth defaults
	viper.SetDefault("auth.secret", defaults.Auth.Secret)
	viper.SetDefault("auth.token_ttl", defaults.Auth.TokenTTL)
	viper.SetDefault("auth.issuer", defaults.Auth.Issuer)

	// Redis defaults
	viper.SetDefault("redis.addr", defaults.Redis.Addr)
	viper.SetDefault("redis.password", defaults.Redis.Password)
	viper.SetDefault("redis.db", defaults.Redis.DB)
	viper.SetDefault("redis.key_prefix", defaults.Redis.KeyPrefix)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	if out.Auth.Secret != "" {
		out.Auth.Secret = "********"
	}
	if out.Redis.Password != "" {
		out.Redis.Password = "********"
	}
	return &out
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "todohub")
	}
	// Fall back to ~/.config/todohub
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todohub"
	}
	return filepath.Join(home, ".config", "todohub")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultLogFile returns the log file path suggested by config init
func DefaultLogFile() string {
	return filepath.Join(ConfigDir(), "todohub.log")
}
