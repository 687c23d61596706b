package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  *zap.Logger
)

func init() {
	if err := Init("development"); err != nil {
		base = zap.NewNop()
	}
}

// Init rebuilds the process logger. "prod"/"production" selects the JSON
// encoder; anything else gets the console encoder.
func Init(mode string) error {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production", "release":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// SetOutput replaces the logger entirely. Intended for tests.
func SetOutput(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func SetLevel(l LogLevel) {
	switch l {
	case DEBUG:
		level.SetLevel(zapcore.DebugLevel)
	case WARN:
		level.SetLevel(zapcore.WarnLevel)
	case ERROR:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func GetLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

func logf(l LogLevel, component, message string, fields map[string]interface{}) {
	mu.RLock()
	lg := base
	mu.RUnlock()
	if lg == nil {
		return
	}

	zf := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zf = append(zf, zap.String("component", component))
	}
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}

	switch l {
	case DEBUG:
		lg.Debug(message, zf...)
	case WARN:
		lg.Warn(message, zf...)
	case ERROR:
		lg.Error(message, zf...)
	default:
		lg.Info(message, zf...)
	}
}

func Debug(message string) { logf(DEBUG, "", message, nil) }
func Info(message string)  { logf(INFO, "", message, nil) }
func Warn(message string)  { logf(WARN, "", message, nil) }
func Error(message string) { logf(ERROR, "", message, nil) }

func DebugC(component, message string) { logf(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logf(INFO, component, message, nil) }
func WarnC(component, message string)  { logf(WARN, component, message, nil) }
func ErrorC(component, message string) { logf(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	logf(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	logf(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	logf(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	logf(ERROR, component, message, fields)
}
