package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "server.send_queue_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// MinSecretLength is the shortest auth.secret accepted.
const MinSecretLength = 16

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidServerModes returns the list of valid HTTP router modes
func ValidServerModes() []string {
	return []string{"release", "debug", "test"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// An empty auth.secret is allowed here; commands that sign or verify
// credentials call RequireSecret.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// RequireSecret reports an error unless auth.secret is set.
func (c *Config) RequireSecret() error {
	if c.Auth.Secret == "" {
		return ValidationError{
			Field:   "auth.secret",
			Value:   "",
			Message: "is required (set it in the config file or TODOHUB_AUTH_SECRET)",
		}
	}
	return nil
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must be host:port",
		})
	}

	if !strings.HasPrefix(c.Server.WSPath, "/") {
		errors = append(errors, ValidationError{
			Field:   "server.ws_path",
			Value:   c.Server.WSPath,
			Message: "must start with /",
		})
	}

	for i, pattern := range c.Server.AllowedOrigins {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("server.allowed_origins[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	if c.Server.SendQueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.send_queue_size",
			Value:   c.Server.SendQueueSize,
			Message: "must be at least 1",
		})
	}

	// A frame must at least fit a join message.
	const minReadLimit = 512
	if c.Server.ReadLimitBytes < minReadLimit {
		errors = append(errors, ValidationError{
			Field:   "server.read_limit_bytes",
			Value:   c.Server.ReadLimitBytes,
			Message: fmt.Sprintf("must be at least %d", minReadLimit),
		})
	}

	if c.Server.ShutdownTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Value:   c.Server.ShutdownTimeout,
			Message: "must be positive",
		})
	}

	if !slices.Contains(ValidServerModes(), c.Server.Mode) {
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Value:   c.Server.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidServerModes(), ", ")),
		})
	}

	return errors
}

// validateAuth validates the AuthConfig
func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if c.Auth.Secret != "" && len(c.Auth.Secret) < MinSecretLength {
		errors = append(errors, ValidationError{
			Field:   "auth.secret",
			Value:   fmt.Sprintf("<%d chars>", len(c.Auth.Secret)),
			Message: fmt.Sprintf("must be at least %d characters", MinSecretLength),
		})
	}

	if c.Auth.TokenTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "auth.token_ttl",
			Value:   c.Auth.TokenTTL,
			Message: "must be positive",
		})
	}

	return errors
}

// validateRedis validates the RedisConfig
func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if c.Redis.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.addr",
			Value:   c.Redis.Addr,
			Message: "is required",
		})
	}

	if c.Redis.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Value:   c.Redis.DB,
			Message: "must be non-negative",
		})
	}

	if c.Redis.KeyPrefix == "" || strings.ContainsAny(c.Redis.KeyPrefix, " \t\n") {
		errors = append(errors, ValidationError{
			Field:   "redis.key_prefix",
			Value:   c.Redis.KeyPrefix,
			Message: "must be non-empty and contain no whitespace",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
