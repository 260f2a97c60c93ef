package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/todohub/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify todohub configuration",
	Long: `View or modify todohub configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  todohub config set server.addr :8080
  todohub config set logging.level debug
  todohub config set server.allowed_origins "https://*.example.com,http://localhost:*"

Valid keys:
  server.addr              - Listen address (host:port)
  server.ws_path           - Websocket endpoint path
  server.allowed_origins   - Comma-separated origin glob patterns
  server.send_queue_size   - Outbound messages buffered per connection
  server.read_limit_bytes  - Largest inbound websocket message
  server.shutdown_timeout  - Graceful shutdown budget (e.g. 10s)
  server.mode              - HTTP router mode: release, debug, test
  auth.secret              - Credential signing secret (min 16 chars)
  auth.token_ttl           - Credential lifetime (e.g. 8760h)
  auth.issuer              - Credential issuer name
  redis.addr               - Redis address (host:port)
  redis.password           - Redis password
  redis.db                 - Redis database number
  redis.key_prefix         - Prefix for every Redis key
  logging.level            - debug, info, warn, error
  logging.file             - Log file path (empty for stderr)
  logging.max_size_mb      - Rotate the log file at this size
  logging.max_backups      - Rotated files to keep
  logging.compress         - Gzip rotated files (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/todohub/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configKeys maps every settable key to its value kind.
var configKeys = map[string]string{
	"server.addr":             "string",
	"server.ws_path":          "string",
	"server.allowed_origins":  "list",
	"server.send_queue_size":  "int",
	"server.read_limit_bytes": "int",
	"server.shutdown_timeout": "duration",
	"server.mode":             "string",
	"auth.secret":             "string",
	"auth.token_ttl":          "duration",
	"auth.issuer":             "string",
	"redis.addr":              "string",
	"redis.password":          "string",
	"redis.db":                "int",
	"redis.key_prefix":        "string",
	"logging.level":           "string",
	"logging.file":            "string",
	"logging.max_size_mb":     "int",
	"logging.max_backups":     "int",
	"logging.compress":        "bool",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "Configuration is invalid, showing defaults:\n%v\n\n", err)
		cfg = config.Default()
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// parseConfigValue converts value to the kind key expects.
func parseConfigValue(key, value string) (any, error) {
	kind, ok := configKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'todohub config set --help' to see valid keys", key)
	}

	switch kind {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case "duration":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a duration like 10s or 24h", key)
		}
		return value, nil
	case "list":
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	// Set the value in viper and validate the result before writing
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("refusing to write an invalid config: %w", err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	shown := typedValue
	if key == "auth.secret" || key == "redis.password" {
		shown = "********"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, shown)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)

	return nil
}

const configTemplate = `# todohub configuration

server:
  # Listen address for the HTTP API and the websocket endpoint
  addr: ":3000"
  # Path of the websocket endpoint (clients pass ?token=...)
  ws_path: /ws
  # Origin glob patterns accepted for websocket upgrades
  allowed_origins:
    - "*"
  # Outbound messages buffered per connection before messages are dropped
  send_queue_size: 64
  # Largest inbound websocket message in bytes
  read_limit_bytes: 65536
  # How long a graceful shutdown may take
  shutdown_timeout: 10s
  # HTTP router mode: release, debug, test
  mode: release

auth:
  # Credential signing secret, at least 16 characters.
  # Prefer the TODOHUB_AUTH_SECRET environment variable.
  secret: ""
  # Credential lifetime
  token_ttl: 8760h
  issuer: todohub

redis:
  addr: localhost:6379
  password: ""
  db: 0
  # Every key is stored under this prefix
  key_prefix: todohub

logging:
  # debug, info, warn, error
  level: info
  # Log file path; empty logs to stderr
  file: %q
  # Rotate the file at this size
  max_size_mb: 10
  max_backups: 3
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'todohub config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate, config.DefaultLogFile())
	if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Set auth.secret before running 'todohub serve'.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/todohub/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: TODOHUB_* (e.g., TODOHUB_AUTH_SECRET)")

	return nil
}
