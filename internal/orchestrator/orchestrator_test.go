// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/agent"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/mocks"
	"github.com/xkilldash9x/cherry/internal/vision"
)

// -- Mock Implementations for Testing --

// scriptedMind returns decisions from a script indexed by call number (1-based).
type scriptedMind struct {
	mu     sync.Mutex
	calls  int
	script func(ctx context.Context, call int, s *agent.Session) agent.Decision
}

func (m *scriptedMind) Decide(ctx context.Context, s *agent.Session) agent.Decision {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	return m.script(ctx, n, s)
}

func (m *scriptedMind) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func decided(a agent.Action) agent.Decision {
	return agent.Decision{Action: a, Source: agent.SourceModel}
}

// fakeRunner records executed actions.
type fakeRunner struct {
	mu      sync.Mutex
	actions []agent.Action
	fn      func(ctx context.Context, a agent.Action) (string, error)
}

func (r *fakeRunner) Execute(ctx context.Context, a agent.Action) (string, error) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, a)
	}
	return "Completed", nil
}

func (r *fakeRunner) Actions() []agent.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]agent.Action(nil), r.actions...)
}

type fakeScreenshotter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeScreenshotter) Screenshot(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "/tmp/repeat.png", nil
}

// recordingSink captures narration.
type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) Announce(_ context.Context, speaker agent.Speaker, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(speaker)+": "+text)
	return nil
}

func (r *recordingSink) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -- Test Fixture Setup --

type orchestratorTestFixture struct {
	Orch   *Orchestrator
	Mind   *scriptedMind
	Runner *fakeRunner
	Screen *fakeScreenshotter
	Sink   *recordingSink

	mu     sync.Mutex
	sleeps []time.Duration
}

func (f *orchestratorTestFixture) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func testAgentConfig() config.AgentConfig {
	cfg := config.NewDefaultConfig().Agent
	cfg.ActionTimeout = time.Second
	return cfg
}

// setupTest creates a fresh fixture. Sleeps are recorded, not performed.
func setupTest(t *testing.T, cfg config.AgentConfig, script func(context.Context, int, *agent.Session) agent.Decision, opts ...Option) *orchestratorTestFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &orchestratorTestFixture{
		Mind:   &scriptedMind{script: script},
		Runner: &fakeRunner{},
		Screen: &fakeScreenshotter{},
		Sink:   &recordingSink{},
	}
	narrator := agent.NewNarrator(logger, time.Second, f.Sink)
	opts = append([]Option{WithScreenshotter(f.Screen)}, opts...)

	orch, err := New(cfg, logger, f.Mind, f.Runner, narrator, opts...)
	require.NoError(t, err)
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return ctx.Err()
	}
	f.Orch = orch
	return f
}

func goal(text string) Goal {
	return Goal{ID: "goal-1", Text: text, Source: SourceCLI, SubmittedAt: time.Now()}
}

// -- Test Cases --

func TestNewOrchestrator(t *testing.T) {
	logger := zap.NewNop()
	narrator := agent.NewNarrator(logger, time.Second)
	mind := &scriptedMind{}
	runner := &fakeRunner{}

	orch, err := New(testAgentConfig(), logger, mind, runner, narrator)
	require.NoError(t, err)
	assert.NotNil(t, orch)

	_, err = New(testAgentConfig(), nil, mind, runner, narrator)
	assert.Error(t, err, "Should fail with nil logger")
	_, err = New(testAgentConfig(), logger, nil, runner, narrator)
	assert.Error(t, err, "Should fail with nil mind")
	_, err = New(testAgentConfig(), logger, mind, nil, narrator)
	assert.Error(t, err, "Should fail with nil runner")
	_, err = New(testAgentConfig(), logger, mind, runner, nil)
	assert.Error(t, err, "Should fail with nil narrator")
}

func TestRunTask_ScreenshotThenFinish(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call == 1 {
			return decided(agent.NewAction(agent.TakeScreenshotParams{}))
		}
		return decided(agent.Finish("I took a screenshot."))
	})
	f.Runner.fn = func(context.Context, agent.Action) (string, error) {
		return "Screenshot saved to /tmp/s.png", nil
	}

	out := f.Orch.RunTask(context.Background(), goal("take a screenshot"))

	assert.Equal(t, schemas.TaskFinished, out.State)
	assert.Equal(t, 2, out.Steps)
	require.Len(t, out.History, 2)
	assert.Equal(t, agent.TaskStartedEntry, out.History[0])
	assert.True(t, strings.HasPrefix(out.History[1], "Step 1: take_screenshot({}) -> Screenshot saved to /tmp/s.png (took "))
	assert.Regexp(t, `^I took a screenshot\. Task completed in \d+\.\d seconds\.$`, out.Summary)

	lines := f.Sink.Lines()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "user: take a screenshot", lines[0])
	assert.Equal(t, "cherry: I'll work on that for you.", lines[1])
	assert.Equal(t, "cherry: "+out.Summary, lines[len(lines)-1])
	assert.Equal(t, []time.Duration{2 * time.Second}, f.Sleeps(), "action delay after the successful step")
}

func TestRunTask_MaxStepsReached(t *testing.T) {
	cfg := testAgentConfig()
	f := setupTest(t, cfg, func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		return decided(agent.NewAction(agent.ClickMouseParams{X: call, Y: call}))
	})

	out := f.Orch.RunTask(context.Background(), goal("click everything"))

	assert.Equal(t, schemas.TaskMaxStepsReached, out.State)
	assert.Equal(t, cfg.MaxSteps, f.Mind.Calls(), "no decision after the last step")
	assert.Len(t, f.Runner.Actions(), cfg.MaxSteps)
	assert.Len(t, out.History, cfg.MaxSteps+1)
	assert.True(t, strings.HasPrefix(out.Summary, fmt.Sprintf("I've completed %d steps in ", cfg.MaxSteps)))
	assert.True(t, strings.HasSuffix(out.Summary, "The task may need to be broken down further or require manual intervention."))
}

func TestRunTask_RepeatMitigationOnFifthProposal(t *testing.T) {
	wait := agent.NewAction(agent.WaitParams{Seconds: 1})
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call <= 5 {
			return decided(wait)
		}
		return decided(agent.Finish("done"))
	})

	out := f.Orch.RunTask(context.Background(), goal("wait around"))

	assert.Equal(t, schemas.TaskFinished, out.State)
	assert.Len(t, f.Runner.Actions(), 4, "the fifth proposal is not executed")
	assert.Equal(t, 1, f.Screen.calls)
	assert.Contains(t, f.Sink.Lines(), "cherry: "+repeatLine)
	assert.Contains(t, f.Sleeps(), 2*time.Second)
	assert.Len(t, out.History, 5)
}

func TestRunTask_SpeakLimit(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call <= 4 {
			return decided(agent.Speak(fmt.Sprintf("question %d?", call)))
		}
		return decided(agent.Finish("done"))
	})

	out := f.Orch.RunTask(context.Background(), goal("chat"))

	assert.Equal(t, schemas.TaskFinished, out.State)
	assert.Len(t, f.Runner.Actions(), 3)
	assert.Contains(t, f.Sink.Lines(), "cherry: "+speakLimitLine)
}

func TestRunTask_SpeakCounterResetsOnOtherActions(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		switch {
		case call == 4:
			return decided(agent.NewAction(agent.TakeScreenshotParams{}))
		case call <= 7:
			return decided(agent.Speak(fmt.Sprintf("note %d", call)))
		default:
			return decided(agent.Finish("done"))
		}
	})

	f.Orch.RunTask(context.Background(), goal("talk"))

	assert.Len(t, f.Runner.Actions(), 7)
	assert.NotContains(t, f.Sink.Lines(), "cherry: "+speakLimitLine)
}

func TestRunTask_DecideTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testAgentConfig()
	cfg.ActionTimeout = 50 * time.Millisecond
	f := setupTest(t, cfg, func(ctx context.Context, call int, _ *agent.Session) agent.Decision {
		if call == 1 {
			<-ctx.Done()
			return decided(agent.Finish("too late"))
		}
		return decided(agent.Finish("done"))
	})

	out := f.Orch.RunTask(context.Background(), goal("slow thinker"))

	assert.Equal(t, schemas.TaskFinished, out.State)
	assert.True(t, strings.HasPrefix(out.Summary, "done Task completed"))
	assert.Equal(t, []string{agent.TaskStartedEntry}, out.History, "a decision timeout appends nothing")
	assert.Equal(t, 2, out.Steps)
	assert.Contains(t, f.Sink.Lines(), "cherry: "+decideTimeoutLine)
}

func TestRunTask_ActionTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testAgentConfig()
	cfg.ActionTimeout = 50 * time.Millisecond
	f := setupTest(t, cfg, func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call == 1 {
			return decided(agent.NewAction(agent.WaitParams{Seconds: 10}))
		}
		return decided(agent.Finish("done"))
	})
	f.Runner.fn = func(ctx context.Context, _ agent.Action) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	out := f.Orch.RunTask(context.Background(), goal("hang"))

	require.Len(t, out.History, 2)
	assert.Equal(t, "Step 1: wait -> TIMEOUT after 0.05s", out.History[1])
	assert.Contains(t, f.Sink.Lines(), "cherry: The action wait is taking longer than expected. I'll try a different approach.")
	assert.Empty(t, f.Sleeps(), "no action delay after a timeout")
}

func TestRunTask_ActionError(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call == 1 {
			return decided(agent.NewAction(agent.OpenWebsiteParams{URL: "example.com"}))
		}
		return decided(agent.Finish("done"))
	})
	f.Runner.fn = func(context.Context, agent.Action) (string, error) {
		return "", &agent.ExecutionError{Code: agent.ErrCodeFeatureDisabled, Action: agent.ActionOpenWebsite, Message: "browser launching is disabled"}
	}

	out := f.Orch.RunTask(context.Background(), goal("browse"))

	require.Len(t, out.History, 2)
	assert.Equal(t, "Step 1: open_website -> ERROR: browser launching is disabled", out.History[1])
	assert.Contains(t, f.Sink.Lines(), "cherry: I encountered an error with open_website: browser launching is disabled. I'll try something else.")
}

func TestRunTask_BudgetOverrun(t *testing.T) {
	cfg := testAgentConfig()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := setupTest(t, cfg, func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		clock.Advance(400 * time.Second)
		return decided(agent.NewAction(agent.ClickMouseParams{X: call}))
	}, WithClock(clock))

	out := f.Orch.RunTask(context.Background(), goal("long task"))

	assert.Equal(t, schemas.TaskTimedOut, out.State)
	assert.Equal(t, 3, f.Mind.Calls())
	assert.Len(t, f.Runner.Actions(), 2, "a decision that lands past the budget is not executed")
	assert.Equal(t, "I've reached the maximum execution time of 15 minutes. Let me summarize what I accomplished.", out.Summary)
}

func TestRunTask_BudgetBoundsSlowSteps(t *testing.T) {
	cfg := testAgentConfig()
	cfg.MaxExecutionTime = 100 * time.Millisecond
	cfg.ActionTimeout = 100 * time.Millisecond

	slow := func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(90 * time.Millisecond):
		}
	}
	f := setupTest(t, cfg, func(ctx context.Context, call int, _ *agent.Session) agent.Decision {
		slow(ctx)
		return decided(agent.NewAction(agent.ClickMouseParams{X: call}))
	})
	f.Runner.fn = func(ctx context.Context, _ agent.Action) (string, error) {
		slow(ctx)
		return "Clicked", ctx.Err()
	}

	out := f.Orch.RunTask(context.Background(), goal("slow task"))

	assert.Equal(t, schemas.TaskTimedOut, out.State)
	assert.LessOrEqual(t, out.Elapsed, cfg.MaxExecutionTime+cfg.ActionTimeout,
		"a task ends within one step timeout of its budget")
}

func TestRunTask_LoopGuardHandsControlBackToModel(t *testing.T) {
	cfg := testAgentConfig()
	cfg.ScreenAnalysisDelay = 0
	cfg.StagnationThreshold = 100

	llm := new(mocks.MockLLMClient)
	for x := 1; x <= 5; x++ {
		llm.On("Generate", mock.Anything, mock.Anything).
			Return(fmt.Sprintf(`{"function": "scroll", "parameters": {"x": %d, "y": 10, "direction": "down"}}`, x), nil).Once()
	}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"function": "finish", "parameters": {"summary": "Scrolled to the end."}}`, nil).Once()
	observer := new(mocks.MockObserver)
	observer.On("Capture", mock.Anything).Return(vision.ScreenContext{Description: "a long page"})

	logger := zap.NewNop()
	mind := agent.NewLLMMind(logger, llm, observer, nil, cfg, config.NewDefaultConfig().LLM)
	runner := &fakeRunner{}
	sink := &recordingSink{}
	orch, err := New(cfg, logger, mind, runner, agent.NewNarrator(logger, time.Second, sink))
	require.NoError(t, err)
	orch.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	out := orch.RunTask(context.Background(), goal("scroll down"))

	assert.Equal(t, schemas.TaskFinished, out.State)
	llm.AssertNumberOfCalls(t, "Generate", 6)

	var names []agent.ActionName
	for _, a := range runner.Actions() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []agent.ActionName{
		agent.ActionScroll, agent.ActionScroll, agent.ActionScroll, agent.ActionScroll, agent.ActionScroll,
		agent.ActionSpeak,
	}, names, "the guard speaks once, then the model decides again")
}

func TestRunTask_InvalidDecisionAborts(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(context.Context, int, *agent.Session) agent.Decision {
		return agent.Decision{}
	})

	out := f.Orch.RunTask(context.Background(), goal("confuse"))

	assert.Equal(t, schemas.TaskAborted, out.State)
	assert.Equal(t, invalidDecisionLine, out.Summary)
	assert.Empty(t, f.Runner.Actions())
}

func TestRunTask_PanickingMindAborts(t *testing.T) {
	f := setupTest(t, testAgentConfig(), func(context.Context, int, *agent.Session) agent.Decision {
		panic("model exploded")
	})

	out := f.Orch.RunTask(context.Background(), goal("boom"))
	assert.Equal(t, schemas.TaskAborted, out.State)
}

func TestRunTask_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := setupTest(t, testAgentConfig(), func(_ context.Context, call int, _ *agent.Session) agent.Decision {
		if call == 2 {
			cancel()
		}
		return decided(agent.NewAction(agent.ClickMouseParams{X: call}))
	})

	out := f.Orch.RunTask(ctx, goal("interrupt me"))

	assert.Equal(t, schemas.TaskAborted, out.State)
	assert.Equal(t, cancelledLine, out.Summary)
	assert.Len(t, f.Runner.Actions(), 1)
	assert.Contains(t, f.Sink.Lines(), "cherry: "+cancelledLine)
}

func TestRunTask_SavesRecord(t *testing.T) {
	store := new(mocks.MockTaskStore)
	store.On("SaveTask", mock.Anything, mock.MatchedBy(func(r schemas.TaskRecord) bool {
		return r.Goal == "save me" && r.State == schemas.TaskFinished && r.Source == SourceCLI && len(r.History) == 1
	})).Return(errors.New("db down")).Once()

	f := setupTest(t, testAgentConfig(), func(context.Context, int, *agent.Session) agent.Decision {
		return decided(agent.Finish("ok"))
	}, WithStore(store))

	out := f.Orch.RunTask(context.Background(), goal("save me"))

	assert.Equal(t, schemas.TaskFinished, out.State, "store failures do not change the outcome")
	store.AssertExpectations(t)
}

func TestServe_DrainsQueueInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTest(t, testAgentConfig(), func(_ context.Context, _ int, s *agent.Session) agent.Decision {
		return decided(agent.Finish("finished " + s.Goal))
	})
	queue := NewGoalQueue(zap.NewNop(), 4)
	_, err := queue.Submit("first", SourceStdin)
	require.NoError(t, err)
	_, err = queue.Submit("second", SourceStdin)
	require.NoError(t, err)
	queue.Close()

	var outcomes []Outcome
	err = f.Orch.Serve(context.Background(), queue, func(o Outcome) { outcomes = append(outcomes, o) })

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "first", outcomes[0].Goal.Text)
	assert.Equal(t, "second", outcomes[1].Goal.Text)
}

func TestServe_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := setupTest(t, testAgentConfig(), func(context.Context, int, *agent.Session) agent.Decision {
		return decided(agent.Finish("ok"))
	})
	queue := NewGoalQueue(zap.NewNop(), 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Orch.Serve(ctx, queue, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}
