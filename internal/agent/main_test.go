// File: internal/agent/main_test.go
package agent_test

import (
	"os"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/observability"
)

// TestMain initializes the global logger before running the agent tests.
func TestMain(m *testing.M) {
	logConfig := config.NewDefaultConfig().Logger
	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"

	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	exitCode := m.Run()

	observability.Sync()
	observability.ResetForTest()

	os.Exit(exitCode)
}
