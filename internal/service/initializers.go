// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/agent"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/desktop"
	"github.com/xkilldash9x/cherry/internal/humanoid"
	"github.com/xkilldash9x/cherry/internal/llmclient"
	"github.com/xkilldash9x/cherry/internal/mcp"
	"github.com/xkilldash9x/cherry/internal/search"
	"github.com/xkilldash9x/cherry/internal/store"
	"github.com/xkilldash9x/cherry/internal/vision"
)

// llmclientFactory is replaced in tests so the factory runs without the network.
var llmclientFactory = llmclient.NewClient

// InitializeStore connects to PostgreSQL and migrates the task tables. An
// empty URL disables persistence and returns a nil store and pool.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		logger.Info("No database configured; task history will not be persisted.")
		return nil, nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	taskStore, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize task store: %w", err)
	}
	if err := taskStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Task store initialized.", zap.String("host", poolConfig.ConnConfig.Host))
	return taskStore, pool, nil
}

// InitializeLLMClient creates a new LLM client based on the configuration.
func InitializeLLMClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclientFactory(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. The agent cannot make decisions without it.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeToolManager starts the configured MCP servers. Servers that fail
// are logged and skipped, so the returned manager is always usable.
func InitializeToolManager(ctx context.Context, cfg config.MCPConfig, logger *zap.Logger) *mcp.Manager {
	manager := mcp.NewManager(cfg, logger)
	if err := manager.Connect(ctx); err != nil {
		logger.Warn("No MCP servers available; mcp_execute will report tools as unavailable.", zap.Error(err))
	}
	return manager
}

// InitializeInput builds the humanised input controller and the URL opener.
// Both are nil when desktop control is disabled.
func InitializeInput(cfg config.DesktopConfig, logger *zap.Logger) (*humanoid.Controller, desktop.URLOpener) {
	if !cfg.Enabled {
		logger.Info("Desktop control disabled.")
		return nil, nil
	}
	runner := desktop.ExecRunner{}
	device := desktop.NewXdotoolDevice(cfg.XdotoolPath, runner, logger)
	return humanoid.New(device, humanoid.ConfigFromDesktop(cfg), logger), desktop.NewSystemOpener(runner)
}

// InitializeObserver builds the screen observer with tesseract OCR.
func InitializeObserver(cfg config.VisionConfig, logger *zap.Logger) *vision.Observer {
	ocr := vision.TesseractCLI{Path: cfg.TesseractPath, Timeout: cfg.OCRTimeout}
	return vision.NewObserver(cfg, vision.DisplayGrabber{Region: cfg.Region}, ocr, logger)
}

// InitializeSearcher returns the web search provider, or nil when search is disabled.
func InitializeSearcher(cfg config.SearchConfig, logger *zap.Logger) agent.Searcher {
	if !cfg.Enabled {
		logger.Info("Web search disabled.")
		return nil
	}
	return search.NewDuckDuckGo(cfg, logger)
}
