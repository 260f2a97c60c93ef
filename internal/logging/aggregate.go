package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of a JSON log file.
type LogEntry struct {
	Timestamp  time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"msg"`
	User       string         `json:"user,omitempty"`
	Collection string         `json:"collection,omitempty"`
	ConnID     string         `json:"conn_id,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Zero-valued fields do not filter.
// All set criteria must match.
type LogFilter struct {
	// Level is the minimum level (DEBUG < INFO < WARN < ERROR).
	Level      string
	StartTime  time.Time
	EndTime    time.Time
	User       string
	Collection string
	ConnID     string
	// MessageContains is a plain substring match on the message.
	MessageContains string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// LevelRank returns the ordering rank of a level, or -1 if unknown.
func LevelRank(level string) int {
	if r, ok := levelRank[strings.ToUpper(level)]; ok {
		return r
	}
	return -1
}

// AggregateLogs reads every parseable entry from a JSON log file, sorted by
// timestamp. Lines that are not JSON objects are skipped.
func AggregateLogs(logPath string) ([]LogEntry, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file at %s: %w", logPath, err)
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := ReadLogEntries(f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// ReadLogEntries parses JSON log lines from r in input order.
func ReadLogEntries(r io.Reader) ([]LogEntry, error) {
	const maxLine = 1024 * 1024

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return entries, nil
}

// ParseLogEntry parses a single JSON log line.
func ParseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "time":
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				entry.Timestamp = t
			}
		case "level":
			entry.Level = s
		case "msg":
			entry.Message = s
		case KeyUser:
			entry.User = s
		case KeyCollection:
			entry.Collection = s
		case KeyConn:
			entry.ConnID = s
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching every criterion in filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var out []LogEntry
	for _, e := range entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether e satisfies the filter.
func (f LogFilter) Matches(e LogEntry) bool {
	if f.Level != "" {
		minRank, got := LevelRank(f.Level), LevelRank(e.Level)
		if minRank >= 0 && got >= 0 && got < minRank {
			return false
		}
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.User != "" && e.User != f.User {
		return false
	}
	if f.Collection != "" && e.Collection != f.Collection {
		return false
	}
	if f.ConnID != "" && e.ConnID != f.ConnID {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// ExportLogEntries writes entries to outputPath in the given format.
// Supported formats: "json", "text", "csv".
func ExportLogEntries(entries []LogEntry, outputPath, format string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := WriteLogEntries(f, entries, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteLogEntries writes entries to w in the given format.
func WriteLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		return writeText(w, entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

// FormatText renders one entry as
// "[2006-01-02 15:04:05.000] LEVEL - message (user=.., collection=..) {attrs}".
func FormatText(e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s - %s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

	if ctx := contextFields(e); len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if len(e.Attrs) > 0 {
		attrs, _ := json.Marshal(e.Attrs)
		b.WriteByte(' ')
		b.Write(attrs)
	}
	return b.String()
}

func contextFields(e LogEntry) []string {
	var ctx []string
	if e.User != "" {
		ctx = append(ctx, KeyUser+"="+e.User)
	}
	if e.Collection != "" {
		ctx = append(ctx, KeyCollection+"="+e.Collection)
	}
	if e.ConnID != "" {
		ctx = append(ctx, KeyConn+"="+e.ConnID)
	}
	return ctx
}

func writeText(w io.Writer, entries []LogEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, FormatText(e)); err != nil {
			return fmt.Errorf("write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "level", "message", KeyUser, KeyCollection, KeyConn, "attrs"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, e := range entries {
		var attrs string
		if len(e.Attrs) > 0 {
			if b, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			e.Timestamp.Format(time.RFC3339Nano),
			e.Level,
			e.Message,
			e.User,
			e.Collection,
			e.ConnID,
			attrs,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
