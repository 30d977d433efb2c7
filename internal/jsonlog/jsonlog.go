// Package jsonlog provides structured logging for the relay service.
// Output is JSON in production (ZF_LOG_FORMAT=json or ZF_ENV=production)
// and plain key=value text otherwise.
package jsonlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger writes structured log entries.
type Logger struct {
	output     io.Writer
	minLevel   Level
	enableJSON bool
}

// Entry is one structured log line.
type Entry struct {
	Level   Level          `json:"level"`
	Time    string         `json:"time"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Default is the process-wide logger, configured from the environment.
var Default *Logger

func init() {
	enableJSON := os.Getenv("ZF_LOG_FORMAT") == "json"
	if os.Getenv("ZF_ENV") == "production" {
		enableJSON = true
	}

	Default = &Logger{
		output:     os.Stdout,
		minLevel:   levelFromEnv(),
		enableJSON: enableJSON,
	}
}

// New builds a logger with explicit settings, used by tests.
func New(output io.Writer, minLevel Level, enableJSON bool) *Logger {
	return &Logger{output: output, minLevel: minLevel, enableJSON: enableJSON}
}

func levelFromEnv() Level {
	switch os.Getenv("ZF_LOG_LEVEL") {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

func (l *Logger) log(level Level, msg string, fields map[string]any, err error) {
	if !l.shouldLog(level) {
		return
	}

	entry := Entry{
		Level:   level,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Message: msg,
		Fields:  fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if l.enableJSON {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(l.output, string(data))
		return
	}

	// Plain text format for development
	fmt.Fprintf(l.output, "[%s] %s %s", entry.Level, entry.Time, entry.Message)
	for k, v := range entry.Fields {
		fmt.Fprintf(l.output, " %s=%v", k, v)
	}
	if entry.Error != "" {
		fmt.Fprintf(l.output, " error=%s", entry.Error)
	}
	fmt.Fprintln(l.output)
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(LevelDebug, msg, fields, nil) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.log(LevelInfo, msg, fields, nil) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.log(LevelWarn, msg, fields, nil) }
func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.log(LevelError, msg, fields, err)
}

// Package-level helpers on the default logger.

func Debug(msg string, fields map[string]any) { Default.Debug(msg, fields) }
func Info(msg string, fields map[string]any)  { Default.Info(msg, fields) }
func Warn(msg string, fields map[string]any)  { Default.Warn(msg, fields) }
func Error(msg string, fields map[string]any, err error) {
	Default.Error(msg, fields, err)
}
