// File: internal/service/components.go
package service

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/agent"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/humanoid"
	"github.com/xkilldash9x/cherry/internal/mcp"
	"github.com/xkilldash9x/cherry/internal/observability"
	"github.com/xkilldash9x/cherry/internal/orchestrator"
	"github.com/xkilldash9x/cherry/internal/store"
	"github.com/xkilldash9x/cherry/internal/vision"
)

// Components holds everything a running agent needs. Optional features that
// are turned off in the configuration are left nil.
type Components struct {
	Config       *config.Config
	LLM          schemas.LLMClient
	Tools        *mcp.Manager
	Observer     *vision.Observer
	Input        *humanoid.Controller
	Searcher     agent.Searcher
	Store        *store.Store
	DBPool       *pgxpool.Pool
	Narrator     *agent.Narrator
	Registry     *agent.ExecutorRegistry
	Mind         *agent.LLMMind
	Orchestrator *orchestrator.Orchestrator
}

// Shutdown releases external resources in reverse order of acquisition. It is
// safe to call on a partially initialized Components.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop the MCP servers; they are child processes.
	if c.Tools != nil {
		if err := c.Tools.Close(); err != nil {
			logger.Warn("Error while closing MCP servers.", zap.Error(err))
		} else {
			logger.Debug("MCP servers stopped.")
		}
	}

	// 2. Release the model client.
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error while closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	// 3. Close the database connection pool last; the orchestrator saves on the way out.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All agent components shut down successfully.")
}
