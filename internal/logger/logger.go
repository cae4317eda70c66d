// Package logger implements leveled structured logging for the translation
// pipeline, with optional file output and size-based rotation.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name used in log entries.
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

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Float64 creates a float field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: fmt.Sprintf("%.3f", value)}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.Round(time.Millisecond).String()}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Err creates an "error" field from err.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Logger is the logging interface used throughout the pipeline.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	SetLevel(level Level)
	Close() error
}

// Config holds logger settings.
type Config struct {
	// LogFilePath is the log file location; empty disables file output.
	LogFilePath string
	// MaxFileSize is the rotation threshold in bytes.
	MaxFileSize int64
	// MaxBackups is how many rotated files to keep.
	MaxBackups int
	// Level is the minimum level written.
	Level Level
	// EnableConsole echoes entries to stderr.
	EnableConsole bool
}

// DefaultConfig returns settings suitable for a long translation run.
func DefaultConfig() *Config {
	return &Config{
		LogFilePath:   "novel-translator.log",
		MaxFileSize:   10 * 1024 * 1024,
		MaxBackups:    3,
		Level:         LevelInfo,
		EnableConsole: true,
	}
}

// fileLogger is the default Logger implementation.
type fileLogger struct {
	mu       sync.Mutex
	cfg      *Config
	level    Level
	file     *os.File
	fileSize int64
	console  io.Writer
}

// New creates a Logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &fileLogger{cfg: cfg, level: cfg.Level}
	if cfg.EnableConsole {
		l.console = os.Stderr
	}
	if cfg.LogFilePath != "" {
		if dir := filepath.Dir(cfg.LogFilePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		if err := l.openFile(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *fileLogger) openFile() error {
	f, err := os.OpenFile(l.cfg.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	l.file = f
	l.fileSize = info.Size()
	return nil
}

func (l *fileLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, nil, fields...) }
func (l *fileLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, nil, fields...) }
func (l *fileLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, nil, fields...) }
func (l *fileLogger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields...)
}

func (l *fileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *fileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *fileLogger) log(level Level, msg string, err error, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)
	if err != nil {
		sb.WriteString(" error=")
		sb.WriteString(fmt.Sprintf("%q", err.Error()))
	}
	for _, f := range fields {
		sb.WriteString(" ")
		sb.WriteString(f.Key)
		sb.WriteString("=")
		sb.WriteString(fmt.Sprintf("%v", f.Value))
	}
	sb.WriteString("\n")
	entry := sb.String()

	if l.file != nil {
		if l.fileSize+int64(len(entry)) > l.cfg.MaxFileSize {
			l.rotate()
		}
		l.file.WriteString(entry)
		l.fileSize += int64(len(entry))
	}
	if l.console != nil {
		io.WriteString(l.console, entry)
	}
}

// rotate renames the current file to .1, shifting older backups up, and opens
// a fresh file. Best effort: rotation failures must not lose the run's logs.
func (l *fileLogger) rotate() {
	if l.file == nil {
		return
	}
	l.file.Close()
	for i := l.cfg.MaxBackups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", l.cfg.LogFilePath, i), fmt.Sprintf("%s.%d", l.cfg.LogFilePath, i+1))
	}
	os.Rename(l.cfg.LogFilePath, l.cfg.LogFilePath+".1")
	os.Remove(fmt.Sprintf("%s.%d", l.cfg.LogFilePath, l.cfg.MaxBackups+1))
	if err := l.openFile(); err != nil {
		l.file = nil
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// Init installs the global logger used by the package-level functions.
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = l
	return nil
}

// SetGlobal replaces the global logger (used by tests).
func SetGlobal(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Close closes the global logger.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		err := globalLogger.Close()
		globalLogger = nil
		return err
	}
	return nil
}

func get() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return noop{}
	}
	return globalLogger
}

// Debug logs at debug level via the global logger.
func Debug(msg string, fields ...Field) { get().Debug(msg, fields...) }

// Info logs at info level via the global logger.
func Info(msg string, fields ...Field) { get().Info(msg, fields...) }

// Warn logs at warn level via the global logger.
func Warn(msg string, fields ...Field) { get().Warn(msg, fields...) }

// Error logs at error level via the global logger.
func Error(msg string, err error, fields ...Field) { get().Error(msg, err, fields...) }

type noop struct{}

func (noop) Debug(string, ...Field)        {}
func (noop) Info(string, ...Field)         {}
func (noop) Warn(string, ...Field)         {}
func (noop) Error(string, error, ...Field) {}
func (noop) SetLevel(Level)                {}
func (noop) Close() error                  { return nil }
