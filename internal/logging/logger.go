package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Context attribute keys shared by the server and the log tooling.
const (
	KeyUser       = "user"
	KeyCollection = "collection"
	KeyConn       = "conn_id"
)

// Options controls where and how a Logger writes.
type Options struct {
	// File is the log file path. Empty means stderr.
	File string
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
	// Rotation applies when File is set.
	Rotation RotationConfig
	// Writer overrides File and stderr when non-nil.
	Writer io.Writer
}

// Logger provides structured JSON logging with persistent context attributes.
// It is safe for concurrent use. Child loggers share the level and the
// underlying writer with their parent.
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	out    *output
}

// output owns the closable sink shared by a logger and its children.
type output struct {
	mu     sync.Mutex
	closer io.Closer
}

// NewLogger creates a Logger according to opts.
func NewLogger(opts Options) (*Logger, error) {
	out := &output{}

	var w io.Writer
	switch {
	case opts.Writer != nil:
		w = opts.Writer
	case opts.File != "":
		rw, err := NewRotatingWriter(opts.File, opts.Rotation)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = rw
		out.closer = rw
	default:
		w = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(opts.Level))

	return &Logger{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})),
		level:  level,
		out:    out,
	}, nil
}

func slogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level of this logger and all loggers derived
// from the same root.
func (l *Logger) SetLevel(level string) {
	l.level.Set(slogLevel(level))
}

// Level returns the current minimum level as one of the Level* constants.
func (l *Logger) Level() string {
	switch l.level.Level() {
	case slog.LevelDebug:
		return LevelDebug
	case slog.LevelWarn:
		return LevelWarn
	case slog.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// With returns a child Logger with the given key-value attributes added to
// every entry.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{
		logger: l.logger.With(args...),
		level:  l.level,
		out:    l.out,
	}
}

// WithUser returns a child Logger tagged with a user display name.
func (l *Logger) WithUser(name string) *Logger {
	return l.With(KeyUser, name)
}

// WithCollection returns a child Logger tagged with a collection key.
func (l *Logger) WithCollection(key string) *Logger {
	return l.With(KeyCollection, key)
}

// WithConn returns a child Logger tagged with a websocket connection id.
func (l *Logger) WithConn(id string) *Logger {
	return l.With(KeyConn, id)
}

// Slog exposes the underlying slog.Logger for libraries that accept one.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Close flushes and closes the log file. It is a no-op for loggers writing
// to stderr or a caller-supplied writer, and safe to call more than once.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.closer == nil {
		return nil
	}
	err := l.out.closer.Close()
	l.out.closer = nil
	return err
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	l, _ := NewLogger(Options{Writer: io.Discard})
	return l
}

// ParseLevel normalizes a level string to one of the Level* constants.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch upper := strings.ToUpper(level); upper {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return upper
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
