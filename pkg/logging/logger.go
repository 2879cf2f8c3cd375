// Package logging provides the structured logger shared across index
// components: the store adapter, path map engine, dedup protocol, and
// reclamation sweep all log through this type rather than the stdlib
// log package.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Format selects the log sink's output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Fields carries structured key/value pairs attached to a log call.
type Fields map[string]interface{}

// entry is a single emitted log record.
type entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Config configures a Logger.
type Config struct {
	Level  Level
	Output io.Writer
	Format Format
}

// DefaultConfig returns text logging at INFO to stdout.
func DefaultConfig() Config {
	return Config{Level: Info, Output: os.Stdout, Format: FormatText}
}

// Logger is a minimal structured logger with per-call field attachment.
// It never panics and never returns an error from a logging call —
// logging failures are not allowed to surface as operation failures.
type Logger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	format Format
	fields map[string]interface{}
}

// New creates a Logger from Config, defaulting zero values sensibly.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Logger{
		level:  cfg.Level,
		output: cfg.Output,
		format: cfg.Format,
		fields: make(map[string]interface{}),
	}
}

// With returns a derived Logger with additional persistent fields, e.g.
// logger.With(logging.Fields{"component": "dedup"}).
func (l *Logger) With(fields Fields) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{level: l.level, output: l.output, format: l.format, fields: merged}
}

// WithComponent is shorthand for With(Fields{"component": name}).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Fields{"component": name})
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	out := l.output
	format := l.format
	l.mu.Unlock()

	e := entry{Timestamp: time.Now(), Level: level.String(), Message: message, Fields: merged}

	var line string
	if format == FormatJSON {
		if data, err := json.Marshal(e); err == nil {
			line = string(data) + "\n"
		} else {
			line = formatText(e)
		}
	} else {
		line = formatText(e)
	}

	_, _ = out.Write([]byte(line))
}

func formatText(e entry) string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [" + e.Level + "] ")
	sb.WriteString(e.Message)
	if len(e.Fields) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Fields {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (l *Logger) Debug(message string, fields ...Fields) { l.log(Debug, message, firstOrNil(fields)) }
func (l *Logger) Info(message string, fields ...Fields)  { l.log(Info, message, firstOrNil(fields)) }
func (l *Logger) Warn(message string, fields ...Fields)  { l.log(Warn, message, firstOrNil(fields)) }
func (l *Logger) Error(message string, fields ...Fields) { l.log(Error, message, firstOrNil(fields)) }

func firstOrNil(fields []Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}
