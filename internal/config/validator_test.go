package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"bad addr", func(c *Config) { c.Server.Addr = "3000" }, "server.addr"},
		{"relative ws path", func(c *Config) { c.Server.WSPath = "ws" }, "server.ws_path"},
		{"bad origin glob", func(c *Config) { c.Server.AllowedOrigins = []string{"*", "[oops"} }, "server.allowed_origins[1]"},
		{"zero send queue", func(c *Config) { c.Server.SendQueueSize = 0 }, "server.send_queue_size"},
		{"tiny read limit", func(c *Config) { c.Server.ReadLimitBytes = 10 }, "server.read_limit_bytes"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"unknown mode", func(c *Config) { c.Server.Mode = "turbo" }, "server.mode"},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "auth.secret"},
		{"negative ttl", func(c *Config) { c.Auth.TokenTTL = -time.Hour }, "auth.token_ttl"},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"negative db", func(c *Config) { c.Redis.DB = -1 }, "redis.db"},
		{"prefix with space", func(c *Config) { c.Redis.KeyPrefix = "todo hub" }, "redis.key_prefix"},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_SecretNeverEchoed(t *testing.T) {
	cfg := Default()
	cfg.Auth.Secret = "tooshort"

	errs := cfg.Validate()
	if len(errs) != 1 {
		t.Fatalf("Validate() = %v", errs)
	}
	if strings.Contains(errs[0].Error(), "tooshort") {
		t.Errorf("validation error leaks the secret: %s", errs[0].Error())
	}
}

func TestRequireSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireSecret(); err == nil {
		t.Error("RequireSecret() should fail without a secret")
	}

	cfg.Auth.Secret = "0123456789abcdef"
	if err := cfg.RequireSecret(); err != nil {
		t.Errorf("RequireSecret() error = %v", err)
	}
}
