package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/todohub/internal/config"
	"github.com/Iron-Ham/todohub/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View server logs",
	Long: `View and filter the server's JSON log file.

The file is logging.file from the config, or the path given with --file.

Examples:
  # Show last 50 lines
  todohub logs

  # Follow logs in real-time
  todohub logs -f

  # Filter by log level
  todohub logs --level warn

  # Everything one user did in the last hour
  todohub logs --user alice --since 1h -n 0

  # Search for specific patterns
  todohub logs --grep "lock|unlock"

  # Export a collection's history as CSV
  todohub logs --collection 01hx3k --export history.csv --format csv`,
	RunE: runLogs,
}

var (
	logsFile       string
	logsTail       int
	logsFollow     bool
	logsLevel      string
	logsSince      string
	logsUser       string
	logsCollection string
	logsConn       string
	logsGrep       string
	logsExport     string
	logsFormat     string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFile, "file", "", "Log file (default: logging.file)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsUser, "user", "", "Filter by user name")
	logsCmd.Flags().StringVar(&logsCollection, "collection", "", "Filter by collection key")
	logsCmd.Flags().StringVar(&logsConn, "conn", "", "Filter by connection id")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "Write matching entries to this file instead of printing")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Export format: json, text or csv")
}

// logQuery is the parsed form of the logs flags.
type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
}

func (q logQuery) matches(e logging.LogEntry) bool {
	if !q.filter.Matches(e) {
		return false
	}
	if q.grep == nil {
		return true
	}
	// Search in message and extra fields
	text := e.Message
	for _, v := range e.Attrs {
		text += " " + fmt.Sprintf("%v", v)
	}
	return q.grep.MatchString(text)
}

func parseLogQuery(now time.Time) (logQuery, error) {
	q := logQuery{filter: logging.LogFilter{
		User:       logsUser,
		Collection: logsCollection,
		ConnID:     logsConn,
	}}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return logQuery{}, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.StartTime = now.Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return logQuery{}, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	logPath := logsFile
	if logPath == "" {
		logPath = config.Get().Logging.File
	}
	if logPath == "" {
		return fmt.Errorf("the server logs to stderr; set logging.file or pass --file")
	}

	q, err := parseLogQuery(time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := paletteFor(out)

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(out, "Following %s... (Ctrl+C to stop)\n\n", logPath)
		return followLogs(ctx, logPath, q, out, p)
	}

	entries, err := logging.AggregateLogs(logPath)
	if err != nil {
		return err
	}
	var matched []logging.LogEntry
	for _, e := range entries {
		if q.matches(e) {
			matched = append(matched, e)
		}
	}

	if logsExport != "" {
		if err := logging.ExportLogEntries(matched, logsExport, logsFormat); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d entries to %s\n", len(matched), logsExport)
		return nil
	}

	// Apply tail limit
	if logsTail > 0 && len(matched) > logsTail {
		matched = matched[len(matched)-logsTail:]
	}
	if len(matched) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range matched {
		fmt.Fprintln(out, p.fit(formatLogEntry(e, p)))
	}
	return nil
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(e logging.LogEntry, p palette) string {
	var sb strings.Builder

	sb.WriteString(p.muted.Render("[" + e.Timestamp.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(p.level(e.Level))
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	for _, kv := range [][2]string{
		{logging.KeyUser, e.User},
		{logging.KeyCollection, e.Collection},
		{logging.KeyConn, e.ConnID},
	} {
		if kv[1] != "" {
			sb.WriteString(" " + p.accent.Render(kv[0]+"=") + kv[1])
		}
	}
	if len(e.Attrs) > 0 {
		attrs, _ := json.Marshal(e.Attrs)
		sb.WriteString(" ")
		sb.Write(attrs)
	}
	return sb.String()
}

// followLogs prints entries appended to logPath until ctx is done. The
// directory is watched so a rotated file is picked up from its start.
func followLogs(ctx context.Context, logPath string, q logQuery, out io.Writer, p palette) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(logPath)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	t := &tailer{path: logPath, query: q, out: out, palette: p}
	defer t.close()
	if err := t.open(io.SeekEnd); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching log file: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(logPath) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				if err := t.open(io.SeekStart); err != nil {
					return err
				}
				t.drain()
			case ev.Has(fsnotify.Write):
				t.drain()
			}
		}
	}
}

// tailer reads complete lines appended to a file.
type tailer struct {
	path    string
	query   logQuery
	out     io.Writer
	palette palette

	file    *os.File
	reader  *bufio.Reader
	pending string
}

func (t *tailer) open(whence int) error {
	t.close()
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if _, err := f.Seek(0, whence); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	t.file = f
	t.reader = bufio.NewReader(f)
	t.pending = ""
	return nil
}

func (t *tailer) close() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

// drain prints every complete line currently readable. A trailing partial
// line is kept until its newline arrives.
func (t *tailer) drain() {
	for {
		chunk, err := t.reader.ReadString('\n')
		t.pending += chunk
		if err != nil {
			return
		}
		line := strings.TrimSpace(t.pending)
		t.pending = ""
		if line == "" {
			continue
		}
		entry, perr := logging.ParseLogEntry(line)
		if perr != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(t.out, line)
			continue
		}
		if t.query.matches(entry) {
			fmt.Fprintln(t.out, t.palette.fit(formatLogEntry(entry, t.palette)))
		}
	}
}
