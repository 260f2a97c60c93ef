// Package logging provides structured JSON logging for the todohub server.
//
// It wraps log/slog with a small [Logger] type that carries the context
// attributes used throughout the collaboration layer (user, collection,
// connection id), a size-based [RotatingWriter], and utilities to read,
// filter and export log files after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{
//	    File:     "/var/log/todohub/server.log",
//	    Level:    "info",
//	    Rotation: logging.DefaultRotationConfig(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	connLog := logger.WithConn(connID).WithUser("alice")
//	connLog.Info("joined collection", "collection", "abc")
//
// The level can be changed at runtime with [Logger.SetLevel]; the change is
// visible to every child logger.
//
// # Aggregation
//
//	entries, err := logging.AggregateLogs("/var/log/todohub/server.log")
//	warnings := logging.FilterLogs(entries, logging.LogFilter{Level: "WARN", Collection: "abc"})
//	err = logging.WriteLogEntries(os.Stdout, warnings, "text")
//
// For tests, [NopLogger] discards all output.
package logging
