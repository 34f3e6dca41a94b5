// File: internal/orchestrator/orchestrator.go
// Description: Runs the perception-decide-act loop for one goal at a time. It
// is injected with the decision engine, executor and narrator via interfaces.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/agent"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/humanoid"
)

const (
	thinkingLine        = "I'll work on that for you."
	decideTimeoutLine   = "I'm taking longer than expected to decide. Let me continue with the current approach."
	invalidDecisionLine = "I'm having trouble deciding what to do next."
	repeatLine          = "I'm repeating the same action. Let me try a different approach or take a screenshot to better understand the situation."
	speakLimitLine      = "I'll proceed with actions instead of asking more questions."
	cancelledLine       = "Task cancelled."

	saveTimeout = 5 * time.Second
)

// ActionRunner executes a single action. *agent.ExecutorRegistry implements it.
type ActionRunner interface {
	Execute(ctx context.Context, action agent.Action) (string, error)
}

// Screenshotter saves a frame for the repeat mitigation.
type Screenshotter interface {
	Screenshot(ctx context.Context) (string, error)
}

// Outcome is the result of one task.
type Outcome struct {
	TaskID  string
	Goal    Goal
	State   schemas.TaskState
	Summary string
	Steps   int
	History []string
	Elapsed time.Duration
}

// Record converts the outcome into its persisted form.
func (o Outcome) Record(startedAt time.Time) schemas.TaskRecord {
	return schemas.TaskRecord{
		ID:         o.TaskID,
		Goal:       o.Goal.Text,
		Source:     o.Goal.Source,
		State:      o.State,
		Summary:    o.Summary,
		Steps:      o.Steps,
		History:    o.History,
		StartedAt:  startedAt.UTC(),
		FinishedAt: startedAt.Add(o.Elapsed).UTC(),
		Elapsed:    o.Elapsed,
	}
}

// Orchestrator owns the control loop. At most one task runs at a time.
type Orchestrator struct {
	cfg      config.AgentConfig
	logger   *zap.Logger
	mind     agent.Mind
	runner   ActionRunner
	narrator *agent.Narrator
	screen   Screenshotter
	store    schemas.TaskStore
	clock    agent.Clock
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists every finished task.
func WithStore(store schemas.TaskStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithScreenshotter enables the screenshot taken when an action repeats.
func WithScreenshotter(s Screenshotter) Option {
	return func(o *Orchestrator) { o.screen = s }
}

// WithClock replaces the wall clock used for task budgets.
func WithClock(c agent.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New creates an Orchestrator. The mind, runner and narrator are required.
func New(
	cfg config.AgentConfig,
	logger *zap.Logger,
	mind agent.Mind,
	runner ActionRunner,
	narrator *agent.Narrator,
	opts ...Option,
) (*Orchestrator, error) {
	if logger == nil || mind == nil || runner == nil || narrator == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		mind:     mind,
		runner:   runner,
		narrator: narrator,
		clock:    agent.SystemClock{},
		sleep:    humanoid.SleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Serve runs queued goals one at a time until the queue is closed or ctx is
// done. handle, when set, receives every outcome.
func (o *Orchestrator) Serve(ctx context.Context, queue *GoalQueue, handle func(Outcome)) error {
	o.logger.Info("Orchestrator serving goal queue")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Orchestrator received context cancellation signal")
			return ctx.Err()
		case goal, ok := <-queue.Goals():
			if !ok {
				o.logger.Info("Goal queue closed, orchestrator stopping")
				return nil
			}
			outcome := o.RunTask(ctx, goal)
			if handle != nil {
				handle(outcome)
			}
		}
	}
}

// RunTask drives one goal to a terminal state.
func (o *Orchestrator) RunTask(ctx context.Context, goal Goal) Outcome {
	session := agent.NewSession(goal.Text, o.clock)
	logger := o.logger.With(zap.String("task_id", session.ID), zap.String("goal_id", goal.ID))
	logger.Info("Task started", zap.String("goal", goal.Text), zap.String("source", goal.Source))

	o.narrator.Reset()
	o.narrator.Announce(ctx, agent.SpeakerUser, goal.Text)
	o.narrator.Think(ctx, thinkingLine)

	state, summary, steps := o.loop(ctx, session, logger)

	outcome := Outcome{
		TaskID:  session.ID,
		Goal:    goal,
		State:   state,
		Summary: summary,
		Steps:   steps,
		History: session.History(),
		Elapsed: session.Elapsed(),
	}
	logger.Info("Task ended",
		zap.String("state", string(state)),
		zap.Int("steps", steps),
		zap.Duration("elapsed", outcome.Elapsed))

	o.save(ctx, outcome, session.StartedAt, logger)
	return outcome
}

// loop returns the terminal state, the narrated summary and the number of
// decision cycles consumed.
func (o *Orchestrator) loop(ctx context.Context, s *agent.Session, logger *zap.Logger) (schemas.TaskState, string, int) {
	for i := 0; i < o.cfg.MaxSteps; i++ {
		step := i + 1
		if ctx.Err() != nil {
			return o.cancelled(ctx, i)
		}

		if o.overBudget(s) {
			return o.timedOut(ctx, i)
		}

		timeout := o.stepTimeout(s)
		decision, timedOut := o.decide(ctx, s, timeout)
		if ctx.Err() != nil {
			return o.cancelled(ctx, step)
		}
		if timedOut {
			if o.overBudget(s) {
				return o.timedOut(ctx, step)
			}
			logger.Warn("Decision timed out", zap.Int("step", step), zap.Duration("timeout", timeout))
			o.narrator.Speak(ctx, decideTimeoutLine)
			continue
		}

		action := decision.Action
		if action.IsZero() {
			o.narrator.Speak(ctx, invalidDecisionLine)
			return schemas.TaskAborted, invalidDecisionLine, step
		}
		logger.Debug("Decision made",
			zap.Int("step", step),
			zap.String("action", action.String()),
			zap.String("source", string(decision.Source)))

		if p, ok := action.Params.(agent.FinishParams); ok {
			msg := fmt.Sprintf("%s Task completed in %.1f seconds.", p.Summary, s.Elapsed().Seconds())
			o.narrator.Speak(ctx, msg)
			return schemas.TaskFinished, msg, step
		}
		if o.overBudget(s) {
			return o.timedOut(ctx, step)
		}

		if n := s.RecordRepeat(action); n > o.cfg.MaxRepeats {
			logger.Warn("Action repeated too often", zap.String("action", action.String()), zap.Int("count", n))
			o.narrator.Speak(ctx, repeatLine)
			o.mitigateRepeat(ctx, s, logger)
			continue
		}

		isSpeak := action.Name == agent.ActionSpeak
		if n := s.RecordSpeak(isSpeak); isSpeak && n > o.cfg.MaxConsecutiveSpeaks {
			o.narrator.Speak(ctx, speakLimitLine)
			continue
		}

		if !o.execute(ctx, s, step, action, logger) {
			return o.cancelled(ctx, step)
		}
	}

	msg := fmt.Sprintf("I've completed %d steps in %.1f seconds. The task may need to be broken down further or require manual intervention.",
		o.cfg.MaxSteps, s.Elapsed().Seconds())
	o.narrator.Speak(ctx, msg)
	return schemas.TaskMaxStepsReached, msg, o.cfg.MaxSteps
}

// overBudget reports whether the task has used its whole execution time.
func (o *Orchestrator) overBudget(s *agent.Session) bool {
	return s.Remaining(o.cfg.MaxExecutionTime) <= 0
}

// stepTimeout is the action timeout capped at what is left of the task budget,
// so no step runs past the end of the budget.
func (o *Orchestrator) stepTimeout(s *agent.Session) time.Duration {
	return min(o.cfg.ActionTimeout, s.Remaining(o.cfg.MaxExecutionTime))
}

func (o *Orchestrator) timedOut(ctx context.Context, steps int) (schemas.TaskState, string, int) {
	minutes := strconv.FormatFloat(o.cfg.MaxExecutionTime.Minutes(), 'f', -1, 64)
	msg := fmt.Sprintf("I've reached the maximum execution time of %s minutes. Let me summarize what I accomplished.", minutes)
	o.narrator.Speak(ctx, msg)
	return schemas.TaskTimedOut, msg, steps
}

// decide runs the mind under timeout. A decision that outlives the timeout is
// abandoned.
func (o *Orchestrator) decide(ctx context.Context, s *agent.Session, timeout time.Duration) (agent.Decision, bool) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan agent.Decision, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Panic recovered in decision engine", zap.Any("panic_value", r), zap.Stack("stack"))
				result <- agent.Decision{}
			}
		}()
		result <- o.mind.Decide(dctx, s)
	}()

	select {
	case d := <-result:
		// A decision that gave up because of our deadline counts as a timeout.
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return agent.Decision{}, true
		}
		return d, false
	case <-dctx.Done():
		return agent.Decision{}, ctx.Err() == nil
	}
}

type execResult struct {
	result string
	err    error
}

// execute runs one action under the step timeout and records its outcome.
// It returns false only when ctx was cancelled.
func (o *Orchestrator) execute(ctx context.Context, s *agent.Session, step int, action agent.Action, logger *zap.Logger) bool {
	timeout := o.stepTimeout(s)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := o.clock.Now()
	done := make(chan execResult, 1)
	go func() {
		res, err := o.runner.Execute(actx, action)
		done <- execResult{result: res, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-actx.Done():
		if ctx.Err() != nil {
			return false
		}
		res = execResult{err: actx.Err()}
	}
	if ctx.Err() != nil {
		return false
	}

	if res.err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			logger.Warn("Action timed out", zap.Int("step", step), zap.String("action", string(action.Name)))
			s.Append(agent.TimeoutEntry(step, action.Name, timeout))
			o.narrator.Speak(ctx, fmt.Sprintf("The action %s is taking longer than expected. I'll try a different approach.", action.Name))
			return true
		}

		msg := errorMessage(res.err)
		logger.Warn("Action failed", zap.Int("step", step), zap.String("action", string(action.Name)), zap.Error(res.err))
		s.Append(agent.ErrorEntry(step, action.Name, msg))
		o.narrator.Speak(ctx, fmt.Sprintf("I encountered an error with %s: %s. I'll try something else.", action.Name, agent.Truncate(msg, 100)))
		return true
	}

	s.Append(agent.SuccessEntry(step, action, res.result, o.clock.Now().Sub(started)))
	return o.sleep(ctx, min(o.cfg.ActionDelay, s.Remaining(o.cfg.MaxExecutionTime))) == nil
}

func (o *Orchestrator) mitigateRepeat(ctx context.Context, s *agent.Session, logger *zap.Logger) {
	if o.screen != nil {
		sctx, cancel := context.WithTimeout(ctx, o.stepTimeout(s))
		path, err := o.screen.Screenshot(sctx)
		cancel()
		if err != nil {
			logger.Debug("Repeat mitigation screenshot failed", zap.Error(err))
		} else {
			logger.Debug("Repeat mitigation screenshot saved", zap.String("path", path))
		}
	}
	_ = o.sleep(ctx, min(o.cfg.RepeatBackoff, s.Remaining(o.cfg.MaxExecutionTime)))
}

func (o *Orchestrator) cancelled(ctx context.Context, steps int) (schemas.TaskState, string, int) {
	o.narrator.Speak(context.WithoutCancel(ctx), cancelledLine)
	return schemas.TaskAborted, cancelledLine, steps
}

// save persists the outcome when a store is configured. It runs even when
// ctx is cancelled so aborted tasks are recorded.
func (o *Orchestrator) save(ctx context.Context, outcome Outcome, startedAt time.Time, logger *zap.Logger) {
	if o.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := o.store.SaveTask(sctx, outcome.Record(startedAt)); err != nil {
		logger.Error("Failed to save task record", zap.Error(err))
	}
}

func errorMessage(err error) string {
	var execErr *agent.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Message
	}
	return err.Error()
}
