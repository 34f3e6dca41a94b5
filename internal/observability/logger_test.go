// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/cherry/internal/config"
)

// -- Test Helper Functions --

// initToBuffer initializes the global logger against an in-memory buffer.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("This is a test message.")
		Sync()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.")
	})

	t.Run("should fall back to default palette", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "debug", Format: "console"})

		GetLogger().Warn("careful")
		Sync()

		assert.Contains(t, buf.String(), colorYellow+"WARN"+colorReset)
		assert.Contains(t, buf.String(), "cherry.", "empty service name defaults to cherry")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should write to a rotated log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "cherry.log")
		initToBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		assert.Same(t, logger1, logger2)
		logger2.Info("test")
		Sync()

		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		initToBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, colorCyan, ColorFor("cyan"))
	assert.Empty(t, ColorFor("plaid"))
}
