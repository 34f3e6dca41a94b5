// File: cmd/run.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/observability"
	"github.com/xkilldash9x/cherry/internal/orchestrator"
	"github.com/xkilldash9x/cherry/internal/service"
)

const replPrompt = "cherry > "

// runOptions carries flag overrides for the run command.
type runOptions struct {
	interactive bool
	maxSteps    int
	maxTime     time.Duration
}

func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [goal...]",
		Short: "Work on a goal, or read goals from stdin",
		Long: `Runs the perception-decide-act loop. With a goal argument the agent works on
that goal and exits. Without one, or with --interactive, goals are read line by
line from stdin and handled in order. Type "exit" or "quit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyRunOverrides(cfg, opts, logger)

			goal := strings.TrimSpace(strings.Join(args, " "))
			interactive := opts.interactive || goal == ""
			return runAgent(ctx, logger, cfg, factory, goal, interactive, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	runCmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Keep reading goals from stdin after the first one")
	runCmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "Override agent.max_steps")
	runCmd.Flags().DurationVar(&opts.maxTime, "max-time", 0, "Override agent.max_execution_time (e.g. 10m)")
	return runCmd
}

// applyRunOverrides writes positive flag values over the configuration.
func applyRunOverrides(cfg *config.Config, opts runOptions, logger *zap.Logger) {
	if opts.maxSteps > 0 {
		cfg.Agent.MaxSteps = opts.maxSteps
		logger.Debug("Overriding max steps", zap.Int("max_steps", opts.maxSteps))
	}
	if opts.maxTime > 0 {
		cfg.Agent.MaxExecutionTime = opts.maxTime
		logger.Debug("Overriding max execution time", zap.Duration("max_execution_time", opts.maxTime))
	}
}

// runAgent contains the core, testable logic of the run command.
func runAgent(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	factory service.ComponentFactory,
	goal string,
	interactive bool,
	in io.Reader,
	out io.Writer,
) error {
	// Narration, outcomes and the REPL share the writer.
	out = zapcore.Lock(zapcore.AddSync(out))

	components, err := factory.Create(ctx, cfg, logger, out)
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	defer components.Shutdown()

	queue := orchestrator.NewGoalQueue(logger, cfg.Agent.GoalQueueSize)

	if goal != "" {
		if _, err := queue.Submit(goal, orchestrator.SourceCLI); err != nil {
			queue.Close()
			return fmt.Errorf("failed to queue goal: %w", err)
		}
	}
	if interactive {
		fmt.Fprint(out, replPrompt)
		go readGoals(ctx, in, out, queue)
	} else {
		queue.Close()
	}

	var failed int
	err = components.Orchestrator.Serve(ctx, queue, func(o orchestrator.Outcome) {
		logger.Info("Task ended",
			zap.String("task_id", o.TaskID),
			zap.String("state", string(o.State)),
			zap.Int("steps", o.Steps),
			zap.Duration("elapsed", o.Elapsed))
		fmt.Fprintf(out, "[%s] %s (%d steps, %s)\n", o.State, o.Summary, o.Steps, o.Elapsed.Round(time.Millisecond))
		if interactive {
			fmt.Fprint(out, replPrompt)
		}
		if o.State != schemas.TaskFinished {
			failed++
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Run interrupted.")
		}
		return err
	}
	if !interactive && failed > 0 {
		return fmt.Errorf("goal did not complete")
	}
	return nil
}

// readGoals feeds stdin lines into the queue until EOF, "exit" or "quit".
func readGoals(ctx context.Context, in io.Reader, out io.Writer, queue *orchestrator.GoalQueue) {
	defer queue.Close()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		}
		if _, err := queue.Submit(line, orchestrator.SourceStdin); err != nil {
			fmt.Fprintf(out, "Could not queue goal: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		observability.GetLogger().Warn("Error reading goals from stdin", zap.Error(err))
	}
}
