package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/mcp"
	"github.com/xkilldash9x/cherry/internal/mocks"
)

func TestComponents_Shutdown(t *testing.T) {
	t.Run("closes every initialized component", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Close").Return(nil).Once()

		components := &Components{
			LLM:   llm,
			Tools: mcp.NewManager(config.MCPConfig{Enabled: true}, zap.NewNop()),
			// DBPool: nil, concrete pool needs a live database
		}

		components.Shutdown()

		llm.AssertExpectations(t)
		assert.False(t, components.Tools.IsConnected())
	})

	t.Run("tolerates close errors", func(t *testing.T) {
		llm := new(mocks.MockLLMClient)
		llm.On("Close").Return(errors.New("already closed")).Once()

		components := &Components{LLM: llm}
		assert.NotPanics(t, components.Shutdown)
		llm.AssertExpectations(t)
	})

	t.Run("empty components", func(t *testing.T) {
		assert.NotPanics(t, (&Components{}).Shutdown)
	})
}
