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
	"github.com/xkilldash9x/gauntlet-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -- Test Cases --

func TestInitialize(t *testing.T) {

	t.Run("should initialize console logger with colors", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggingConfig{Level: "debug"}
		Initialize(cfg, false, zapcore.AddSync(&buf))
		logger := GetLogger()
		logger.Info("This is a test message.")
		Sync() // -- ensure the log is flushed --

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset, "Output should contain the reset color code")
		assert.Contains(t, output, "gauntlet.", "Output should contain the component name")
	})

	t.Run("should write JSON to a log file if configured", func(t *testing.T) {
		ResetForTest()
		logPath := filepath.Join(t.TempDir(), "gauntlet-test.log")

		cfg := config.LoggingConfig{
			Level:     "debug",
			FilePath:  logPath,
			MaxSizeMB: 1,
		}
		Initialize(cfg, false, zapcore.AddSync(&bytes.Buffer{}))
		logger := GetLogger()
		logger.Error("This should go to the file.", zap.String("key", "value"))
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)

		// -- the file output should be a valid JSON object per line --
		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &logEntry), "Log file output should be valid JSON")
		assert.Equal(t, "ERROR", logEntry["level"])
		assert.Equal(t, "gauntlet", logEntry["logger"])
		assert.Equal(t, "This should go to the file.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("debug flag lowers the level to debug", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggingConfig{Level: "info"}
		Initialize(cfg, true, zapcore.AddSync(&buf))
		GetLogger().Debug("visible in debug mode")
		Sync()

		assert.Contains(t, buf.String(), "visible in debug mode")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		// -- first initialization --
		Initialize(config.LoggingConfig{Level: "error"}, false, zapcore.AddSync(&buf))
		logger1 := GetLogger()

		// -- second, should be ignored --
		Initialize(config.LoggingConfig{Level: "debug"}, false, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		// -- check that the logger is the same instance with the first config --
		assert.Equal(t, logger1, logger2)
		logger2.Info("suppressed by the first config's level")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggingConfig{Level: "chatty"}, false, zapcore.AddSync(&buf))
		GetLogger().Debug("filtered")
		GetLogger().Info("kept")
		Sync()

		output := buf.String()
		assert.NotContains(t, output, "filtered")
		assert.Contains(t, output, "kept")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		// -- we do not call InitializeLogger() here --
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		Initialize(config.LoggingConfig{Level: "info"}, false, zapcore.AddSync(&bytes.Buffer{}))

		logger := GetLogger()
		// The pointer to the logger instance should be the same as the one stored.
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
