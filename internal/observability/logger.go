// internal/observability/logger.go
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/procfilter/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const colorReset = "\x1b[0m"

// ansiColors maps the names accepted under logger.colors to SGR foreground codes.
var ansiColors = map[string]int{
	"black":   30,
	"red":     31,
	"green":   32,
	"yellow":  33,
	"blue":    34,
	"magenta": 35,
	"cyan":    36,
	"white":   37,
}

// ansi returns the escape sequence for a color name, or "" when unknown.
func ansi(name string) string {
	code, ok := ansiColors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ""
	}
	return fmt.Sprintf("\x1b[%dm", code)
}

// InitializeLogger installs the global logger. Console output goes to stderr
// so a document rendered to stdout is never interleaved with log lines.
func InitializeLogger(cfg config.LoggerConfig) {
	initializeLogger(cfg, zapcore.Lock(os.Stderr))
}

func initializeLogger(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		level := parseLevel(cfg.Level)
		cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg), console, level)}
		if cfg.LogFile != "" {
			cores = append(cores, newFileCore(cfg, level))
		}

		options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(cores...), options...).Named(cfg.ServiceName)

		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// parseLevel falls back to info for unknown level names.
func parseLevel(text string) zap.AtomicLevel {
	level, err := zap.ParseAtomicLevel(text)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// newFileCore writes JSON entries to a rotated log file.
func newFileCore(cfg config.LoggerConfig, level zapcore.LevelEnabler) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(newEncoder(config.LoggerConfig{Format: "json"}), writer, level)
}

func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = newColorizedLevelEncoder(cfg.Colors)
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// newColorizedLevelEncoder wraps capitalized level names in the configured
// colors. Levels without a known color are written plain.
func newColorizedLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	palette := map[zapcore.Level]string{
		zapcore.DebugLevel:  ansi(colors.Debug),
		zapcore.InfoLevel:   ansi(colors.Info),
		zapcore.WarnLevel:   ansi(colors.Warn),
		zapcore.ErrorLevel:  ansi(colors.Error),
		zapcore.DPanicLevel: ansi(colors.DPanic),
		zapcore.PanicLevel:  ansi(colors.Panic),
		zapcore.FatalLevel:  ansi(colors.Fatal),
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := level.CapitalString()
		if color := palette[level]; color != "" {
			enc.AppendString(color + name + colorReset)
			return
		}
		enc.AppendString(name)
	}
}

var fallbackLogger = sync.OnceValue(func() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
})

// GetLogger returns the global logger, or a development logger when
// InitializeLogger has not run yet.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	return fallbackLogger()
}

// Sync flushes buffered entries. Terminals reject fsync, which is not reported.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}
