// Package logger provides leveled, component-tagged logging for all tgdesk
// subsystems. Call sites use the package-level helpers:
//
//	logger.InfoC("telegram", "Connected")
//	logger.ErrorCF("store", "Query failed", map[string]interface{}{"error": err.Error()})
//
// The C suffix tags the line with a component name; the F suffix attaches
// structured fields. Output goes to a colorized console sink and, when
// enabled, to a JSON-lines file.
package logger

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

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values fall back to
// info rather than failing startup.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

type Logger struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
	color bool
	file  *os.File // optional JSON-lines sink
}

func New(level Level) *Logger {
	return &Logger{level: level, out: os.Stderr, color: true}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects the console sink. Color is disabled for non-terminal
// writers; tests pass a buffer here.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.color = false
}

// EnableFile opens path for appending and mirrors every record to it as one
// JSON object per line.
func (l *Logger) EnableFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func levelColor(level Level) string {
	switch level {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorCyan
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	default:
		return colorReset
	}
}

func (l *Logger) log(level Level, component, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	now := time.Now()
	var b strings.Builder
	b.WriteString(now.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	if l.color {
		b.WriteString(levelColor(level))
	}
	b.WriteString(fmt.Sprintf("%-5s", level.String()))
	if l.color {
		b.WriteString(colorReset)
	}
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	b.WriteByte('\n')
	fmt.Fprint(l.out, b.String())

	if l.file != nil {
		rec := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			rec[k] = v
		}
		rec["ts"] = now.Format(time.RFC3339)
		rec["level"] = level.String()
		if component != "" {
			rec["component"] = component
		}
		rec["msg"] = msg
		if data, err := json.Marshal(rec); err == nil {
			l.file.Write(append(data, '\n'))
		}
	}
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, "", msg, nil) }
func (l *Logger) Info(msg string)  { l.log(LevelInfo, "", msg, nil) }
func (l *Logger) Warn(msg string)  { l.log(LevelWarn, "", msg, nil) }
func (l *Logger) Error(msg string) { l.log(LevelError, "", msg, nil) }

func (l *Logger) DebugC(component, msg string) { l.log(LevelDebug, component, msg, nil) }
func (l *Logger) InfoC(component, msg string)  { l.log(LevelInfo, component, msg, nil) }
func (l *Logger) WarnC(component, msg string)  { l.log(LevelWarn, component, msg, nil) }
func (l *Logger) ErrorC(component, msg string) { l.log(LevelError, component, msg, nil) }

func (l *Logger) DebugCF(component, msg string, fields map[string]interface{}) {
	l.log(LevelDebug, component, msg, fields)
}

func (l *Logger) InfoCF(component, msg string, fields map[string]interface{}) {
	l.log(LevelInfo, component, msg, fields)
}

func (l *Logger) WarnCF(component, msg string, fields map[string]interface{}) {
	l.log(LevelWarn, component, msg, fields)
}

func (l *Logger) ErrorCF(component, msg string, fields map[string]interface{}) {
	l.log(LevelError, component, msg, fields)
}

// --- Package-level default logger ---

var std = New(LevelInfo)

// Default returns the shared logger instance for injection into components
// that hold a logger handle.
func Default() *Logger { return std }

func SetLevel(level Level)         { std.SetLevel(level) }
func SetOutput(w io.Writer)        { std.SetOutput(w) }
func EnableFile(path string) error { return std.EnableFile(path) }

func Debug(msg string) { std.log(LevelDebug, "", msg, nil) }
func Info(msg string)  { std.log(LevelInfo, "", msg, nil) }
func Warn(msg string)  { std.log(LevelWarn, "", msg, nil) }
func Error(msg string) { std.log(LevelError, "", msg, nil) }

func DebugC(component, msg string) { std.log(LevelDebug, component, msg, nil) }
func InfoC(component, msg string)  { std.log(LevelInfo, component, msg, nil) }
func WarnC(component, msg string)  { std.log(LevelWarn, component, msg, nil) }
func ErrorC(component, msg string) { std.log(LevelError, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelDebug, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelInfo, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelWarn, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelError, component, msg, fields)
}
