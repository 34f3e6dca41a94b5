// File: internal/agent/llm_mind.go
package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/humanoid"
)

// DecisionSource records which path of the decision engine produced a Decision.
type DecisionSource string

const (
	SourceModel           DecisionSource = "model"
	SourceLoopGuard       DecisionSource = "loop_guard"
	SourceStagnationGuard DecisionSource = "stagnation_guard"
	SourceParseFallback   DecisionSource = "parse_fallback"
	SourceModelError      DecisionSource = "model_error"
)

const (
	loopGuardMessage    = "I notice I'm repeating actions. Let me try a different approach or ask for clarification."
	stagnationMessage   = "Screen hasn't changed after multiple attempts with extended wait times. Task may be complete or needs different approach."
	unparseableMessage  = "I had trouble understanding the AI response format."
	decisionErrorPrefix = "I encountered an error in decision making: "
)

// Decision is the outcome of one decision cycle.
type Decision struct {
	Action Action
	Source DecisionSource
	// Raw is the model reply, empty when the model was not consulted.
	Raw string
}

// LLMMind implements Mind with guard rails around a language model.
type LLMMind struct {
	logger   *zap.Logger
	client   schemas.LLMClient
	observer Observer
	tools    ToolProvider
	cfg      config.AgentConfig
	llmCfg   config.LLMModelConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ Mind = (*LLMMind)(nil)

// NewLLMMind creates the decision engine. tools may be nil.
func NewLLMMind(
	logger *zap.Logger,
	client schemas.LLMClient,
	observer Observer,
	tools ToolProvider,
	cfg config.AgentConfig,
	llmCfg config.LLMModelConfig,
) *LLMMind {
	m := &LLMMind{
		logger:   logger.Named("llm_mind"),
		client:   client,
		observer: observer,
		tools:    tools,
		cfg:      cfg,
		llmCfg:   llmCfg,
		sleep:    humanoid.SleepContext,
	}
	m.logger.Info("LLMMind initialized",
		zap.String("model", llmCfg.ModelFor(true)),
		zap.Int("history_window", cfg.HistoryWindow),
		zap.Int("stagnation_threshold", cfg.StagnationThreshold))
	return m
}

// Decide runs one decision cycle: loop guard, observation, stagnation guard,
// model call and parsing, in that order.
func (m *LLMMind) Decide(ctx context.Context, s *Session) Decision {
	if DetectLoop(s.LoopHistory(), m.cfg.LoopWindow, m.cfg.LoopMaxDistinct) {
		m.logger.Warn("Detected potential loop, will try different approach")
		s.MarkLoopGuard()
		return Decision{Action: Speak(loopGuardMessage), Source: SourceLoopGuard}
	}

	if err := m.sleep(ctx, m.cfg.ScreenAnalysisDelay); err != nil {
		return m.errorDecision(err)
	}

	screen := m.observer.Capture(ctx)
	if !screen.Degraded {
		if unchanged := s.ObserveScreen(screen.Description); unchanged >= m.cfg.StagnationThreshold {
			m.logger.Warn("Screen unchanged, finishing task", zap.Int("unchanged_count", unchanged))
			return Decision{Action: Finish(stagnationMessage), Source: SourceStagnationGuard}
		}
	}

	var tools []string
	if m.tools != nil && m.tools.IsConnected() {
		tools = m.tools.ToolNames()
	}

	prompt := BuildPrompt(PromptInput{
		Goal:                s.Goal,
		History:             s.HistoryTail(m.cfg.HistoryWindow),
		Screen:              screen.Description,
		Tools:               tools,
		ActionTimeout:       m.cfg.ActionTimeout,
		MaxExecutionTime:    m.cfg.MaxExecutionTime,
		ScreenAnalysisDelay: m.cfg.ScreenAnalysisDelay,
	})

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     float64(m.llmCfg.Temperature),
			TopP:            float64(m.llmCfg.TopP),
			TopK:            m.llmCfg.TopK,
			MaxTokens:       m.llmCfg.MaxTokens,
		},
	}

	reply, err := m.client.Generate(ctx, req)
	if err != nil {
		m.logger.Error("Failed to decide next action", zap.Error(err))
		return m.errorDecision(err)
	}
	m.logger.Debug("AI decision raw", zap.String("reply", reply))

	action, err := ParseAction(reply)
	var execErr *ExecutionError
	switch {
	case err == nil:
		return Decision{Action: action, Source: SourceModel, Raw: reply}
	case errors.As(err, &execErr) && execErr.Code == ErrCodeUnknownAction:
		// Let the executor report the unknown function through the normal error path.
		return Decision{Action: action, Source: SourceModel, Raw: reply}
	case errors.Is(err, ErrNoJSON):
		m.logger.Error("No valid JSON found in AI response", zap.String("reply", reply))
		return Decision{Action: Finish(unparseableMessage), Source: SourceParseFallback, Raw: reply}
	default:
		m.logger.Error("Failed to parse AI response", zap.Error(err))
		return Decision{Action: Finish(decisionErrorPrefix + err.Error()), Source: SourceParseFallback, Raw: reply}
	}
}

func (m *LLMMind) errorDecision(err error) Decision {
	return Decision{Action: Finish(decisionErrorPrefix + err.Error()), Source: SourceModelError}
}
