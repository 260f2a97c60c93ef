package cmd

import (
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/todohub/internal/config"
	"github.com/Iron-Ham/todohub/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the todohub server",
	Long: `Run the HTTP API and the websocket collaboration endpoint.

The server needs auth.secret (or TODOHUB_AUTH_SECRET) and a reachable Redis.
It stops gracefully on SIGINT or SIGTERM. While running, changes to
logging.level in the config file are applied without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ln, err := a.listen()
	if err != nil {
		_ = a.shutdown()
		return err
	}

	watchConfig(logger, cfg)
	return a.serve(ctx, ln)
}

func newLogger(lc config.LoggingConfig) (*logging.Logger, error) {
	return logging.NewLogger(logging.Options{
		File:  lc.File,
		Level: lc.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			Compress:   lc.Compress,
		},
	})
}

// watchConfig reloads the config file on change. Only the log level is
// applied live; the watcher writes only current.Logging.Level.
func watchConfig(logger *logging.Logger, current *config.Config) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := config.Load()
		if err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err.Error())
			return
		}
		applyConfigChange(logger, current, next)
		current.Logging.Level = next.Logging.Level
	})
	viper.WatchConfig()
}

// applyConfigChange applies what can change at runtime and reports the
// sections that need a restart.
func applyConfigChange(logger *logging.Logger, current, next *config.Config) (restart []string) {
	if logging.ParseLevel(next.Logging.Level) != logging.ParseLevel(current.Logging.Level) {
		logger.SetLevel(next.Logging.Level)
		logger.Info("log level changed", "level", logger.Level())
	}

	staticLogging := func(c *config.Config) config.LoggingConfig {
		lc := c.Logging
		lc.Level = ""
		return lc
	}
	if !reflect.DeepEqual(current.Server, next.Server) {
		restart = append(restart, "server")
	}
	if current.Auth != next.Auth {
		restart = append(restart, "auth")
	}
	if current.Redis != next.Redis {
		restart = append(restart, "redis")
	}
	if staticLogging(current) != staticLogging(next) {
		restart = append(restart, "logging")
	}
	if len(restart) > 0 {
		logger.Warn("config change requires a restart", "sections", restart)
	}
	return restart
}
