package collab

import "github.com/Iron-Ham/todohub/internal/logging"

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	logger    *logging.Logger
	debugTaps bool
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithLogger sets the logger used by the hub and its dispatcher.
func WithLogger(l *logging.Logger) Option {
	return func(c *hubConfig) { c.logger = l }
}

// WithEventLogging logs every bus event at debug level.
func WithEventLogging() Option {
	return func(c *hubConfig) { c.debugTaps = true }
}
