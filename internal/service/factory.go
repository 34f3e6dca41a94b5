// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/agent"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/orchestrator"
)

// ComponentFactory defines the interface for creating the set of components
// needed to run the agent. Commands depend on it so they can be tested
// without a display or a model.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the agent. Narration is written to out.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) (*Components, error) {
	components := &Components{Config: cfg}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. LLM client. Without it there is nothing to decide with.
	llm, err := InitializeLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.LLM = llm
	logger.Debug("LLM client initialized.")

	// 2. Task store (optional).
	taskStore, pool, err := InitializeStore(ctx, cfg.Database, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = taskStore
	components.DBPool = pool

	// 3. Tool servers.
	var tools agent.ToolProvider
	if cfg.MCP.Enabled {
		components.Tools = InitializeToolManager(ctx, cfg.MCP, logger)
		tools = components.Tools
		logger.Debug("MCP manager initialized.", zap.Strings("tools", components.Tools.ToolNames()))
	}

	// 4. Perception and device control.
	components.Observer = InitializeObserver(cfg.Vision, logger)
	input, opener := InitializeInput(cfg.Desktop, logger)
	components.Input = input
	components.Searcher = InitializeSearcher(cfg.Search, logger)

	// 5. Narration.
	sinks := []agent.NarrationSink{agent.NewLogSink(logger)}
	if out != nil {
		sinks = append(sinks, agent.NewConsoleSink(out, cfg.Logger.Format == "console"))
	}
	components.Narrator = agent.NewNarrator(logger, cfg.Agent.NarrationTimeout, sinks...)

	// 6. Executors. Disabled features must reach the registry as untyped nils.
	deps := agent.ExecutorDeps{
		Opener:     opener,
		Searcher:   components.Searcher,
		Tools:      tools,
		Observer:   components.Observer,
		MaxResults: cfg.Search.MaxResults,
	}
	if input != nil {
		deps.Input = input
	}
	components.Registry = agent.NewExecutorRegistry(logger, components.Narrator, deps)

	// 7. Decision engine.
	components.Mind = agent.NewLLMMind(logger, llm, components.Observer, tools, cfg.Agent, cfg.LLM)

	// 8. Orchestrator.
	opts := []orchestrator.Option{orchestrator.WithScreenshotter(components.Observer)}
	if taskStore != nil {
		opts = append(opts, orchestrator.WithStore(taskStore))
	}
	orch, err := orchestrator.New(cfg.Agent, logger, components.Mind, components.Registry, components.Narrator, opts...)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch

	logger.Info("All agent components initialized successfully.",
		zap.Bool("desktop", input != nil),
		zap.Bool("vision", cfg.Vision.Enabled),
		zap.Bool("search", components.Searcher != nil),
		zap.Bool("store", taskStore != nil))

	return components, nil
}
