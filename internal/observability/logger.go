// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/cherry/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const (
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorReset   = "\x1b[0m"
)

// ColorReset ends a span started with a ColorFor sequence.
const ColorReset = colorReset

var palette = map[string]string{
	"red":     colorRed,
	"green":   colorGreen,
	"yellow":  colorYellow,
	"blue":    colorBlue,
	"magenta": colorMagenta,
	"cyan":    colorCyan,
	"white":   colorWhite,
}

// ColorFor maps a colour name from the config ("cyan") to its ANSI sequence.
// Unknown names map to "".
func ColorFor(name string) string {
	return palette[name]
}

// Used when the config colours no level at all.
var defaultColors = config.ColorConfig{
	Debug:  "blue",
	Info:   "green",
	Warn:   "yellow",
	Error:  "red",
	DPanic: "magenta",
	Panic:  "magenta",
	Fatal:  "magenta",
}

// Initialize builds the global logger once. Console output goes to
// consoleWriter; when cfg.LogFile is set a rotated JSON file receives a copy.
// Later calls are no-ops until ResetForTest.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(encoderFor(cfg), consoleWriter, level)}
		if cfg.LogFile != "" {
			cores = append(cores, fileCore(cfg, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}

		name := cfg.ServiceName
		if name == "" {
			name = "cherry"
		}
		logger := zap.New(zapcore.NewTee(cores...), opts...).Named(name)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes against a locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so a test can initialize its own.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func fileCore(cfg config.LoggerConfig, level zap.AtomicLevel) zapcore.Core {
	rotated := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.NewCore(encoderFor(config.LoggerConfig{Format: "json"}), zapcore.AddSync(rotated), level)
}

// encoderFor returns a single-line console encoder with coloured levels and a
// dotted component name ("cherry.orchestrator.") for "console", JSON otherwise.
func encoderFor(cfg config.LoggerConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format != "console" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}

	ec.EncodeLevel = levelEncoder(cfg.Colors)
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	if colors == (config.ColorConfig{}) {
		colors = defaultColors
	}
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  palette[colors.Debug],
		zapcore.InfoLevel:   palette[colors.Info],
		zapcore.WarnLevel:   palette[colors.Warn],
		zapcore.ErrorLevel:  palette[colors.Error],
		zapcore.DPanicLevel: palette[colors.DPanic],
		zapcore.PanicLevel:  palette[colors.Panic],
		zapcore.FatalLevel:  palette[colors.Fatal],
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := level.CapitalString()
		if code := byLevel[level]; code != "" {
			label = code + label + colorReset
		}
		enc.AppendString(label)
	}
}

// GetLogger returns the global logger, or a development logger named
// "fallback" when Initialize has not run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// ignorableSyncErrors are returned when syncing a terminal or pipe.
var ignorableSyncErrors = []string{
	"sync /dev/stdout",
	"invalid argument",
	"inappropriate ioctl",
	"operation not supported",
}

// Sync flushes the global logger. Call it before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	err := logger.Sync()
	if err == nil {
		return
	}
	for _, s := range ignorableSyncErrors {
		if strings.Contains(err.Error(), s) {
			return
		}
	}
	fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
}
