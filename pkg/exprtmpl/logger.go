package exprtmpl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogOff
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// slogLevel maps a LogLevel onto slog. LogOff is above every level a
// record can carry.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogInfo:
		return slog.LevelInfo
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelError + 100
}

type Fields map[string]interface{}

// Logger is a leveled logger on top of slog. Loggers derived with
// WithField share the level of their parent.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
}

var (
	globalLogger     *Logger
	globalLoggerMu   sync.RWMutex
	globalLoggerOnce sync.Once
)

func initGlobalLogger() {
	globalLoggerOnce.Do(func() {
		config := GetGlobalConfig()
		l := NewLogger(os.Stderr, parseLogLevel(config.LogLevel))
		globalLoggerMu.Lock()
		if globalLogger == nil {
			globalLogger = l
		}
		globalLoggerMu.Unlock()
	})
}

func parseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warn":
		return LogWarn
	case "error":
		return LogError
	case "off":
		return LogOff
	default:
		return LogInfo
	}
}

// ParseLogLevel parses one of debug, info, warn, error or off.
func ParseLogLevel(levelStr string) (LogLevel, error) {
	level := parseLogLevel(strings.ToLower(levelStr))
	if level == LogInfo && !strings.EqualFold(levelStr, "info") {
		return LogInfo, fmt.Errorf("invalid log level: %s", levelStr)
	}
	return level, nil
}

// NewLogger writes text records to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	return &Logger{
		slog:  slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})),
		level: lv,
	}
}

// NewSlogLogger wraps an existing slog logger. Its handler decides what
// is written; SetLevel adds a floor on top.
func NewSlogLogger(l *slog.Logger) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelDebug)
	return &Logger{slog: l, level: lv}
}

// Slog returns the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

func (l *Logger) IsDebugMode() bool {
	return l.enabled(slog.LevelDebug)
}

func (l *Logger) enabled(level slog.Level) bool {
	return level >= l.level.Level() && l.slog.Enabled(context.Background(), level)
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{slog: l.slog.With(key, value), level: l.level}
}

func (l *Logger) WithFields(fields Fields) *Logger {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.slog.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

// DebugTemplate logs the source of a template about to be compiled.
func (l *Logger) DebugTemplate(name, source string) {
	if !l.IsDebugMode() {
		return
	}
	l.slog.Debug("template source", "template", name, "bytes", len(source))
}

// DebugValue logs an evaluated value.
func (l *Logger) DebugValue(label string, v Value) {
	if !l.IsDebugMode() {
		return
	}
	l.slog.Debug("value", "label", label, "kind", v.Kind().String(), "value", v.String())
}

// Global logging functions
func SetLogger(logger *Logger) {
	initGlobalLogger()
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
}

func GetLogger() *Logger {
	initGlobalLogger()
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

func WithFields(fields Fields) *Logger {
	return GetLogger().WithFields(fields)
}

// UpdateLoggerFromConfig updates the global logger based on the current global configuration
func UpdateLoggerFromConfig() {
	config := GetGlobalConfig()
	GetLogger().SetLevel(parseLogLevel(config.LogLevel))
}

type loggerKey struct{}

// ContextWithLogger returns a context carrying logger. Compile logs
// through it.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger stored in ctx, or fallback when
// there is none. A nil fallback means the global logger.
func LoggerFromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return GetLogger()
}
