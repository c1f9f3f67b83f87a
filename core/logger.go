package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel controls which messages a ProductionLogger emits
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// parseLogLevel maps config strings to levels, defaulting to info
func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ProductionLogger is the default Logger implementation: leveled, structured,
// JSON for log aggregation or text for local development, per LoggingConfig.
type ProductionLogger struct {
	mu         sync.Mutex
	out        io.Writer
	level      LogLevel
	format     string // "json" or "text"
	timeFormat string
	service    string
}

// NewProductionLogger creates a logger from the logging configuration.
// The service name is attached to every entry.
func NewProductionLogger(cfg LoggingConfig, service string) *ProductionLogger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	format := cfg.Format
	if format == "" {
		format = "json"
	}
	return &ProductionLogger{
		out:        os.Stdout,
		level:      parseLogLevel(cfg.Level),
		format:     format,
		timeFormat: timeFormat,
		service:    service,
	}
}

// SetOutput redirects log output; used by tests
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, "INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, "WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, "ERROR", msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, "DEBUG", msg, fields)
}

func (l *ProductionLogger) log(level LogLevel, label, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().Format(l.timeFormat)

	if l.format == "text" {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %-5s %s", now, label, msg)
		// Sorted keys keep text output stable for humans and tests
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
		b.WriteByte('\n')
		_, _ = io.WriteString(l.out, b.String())
		return
	}

	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		// Errors don't marshal to JSON; flatten them to strings
		if err, ok := v.(error); ok {
			entry[k] = err.Error()
			continue
		}
		entry[k] = v
	}
	entry["time"] = now
	entry["level"] = label
	entry["message"] = msg
	if l.service != "" {
		entry["service"] = l.service
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.out, `{"time":%q,"level":"ERROR","message":"failed to marshal log entry","error":%q}`+"\n", now, err.Error())
		return
	}
	data = append(data, '\n')
	_, _ = l.out.Write(data)
}
