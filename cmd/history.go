// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/observability"
	"github.com/xkilldash9x/cherry/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// storeProvider creates the task store. Tests inject a mock through it.
type storeProvider interface {
	// Create returns the store and a cleanup function that releases its resources.
	Create(ctx context.Context, cfg *config.Config) (schemas.TaskStore, func(), error)
}

// defaultStoreProvider connects to the configured PostgreSQL database.
type defaultStoreProvider struct{}

// NewStoreProvider is a factory function that creates a new defaultStoreProvider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (schemas.TaskStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (CHERRY_DATABASE_URL)")
	}
	taskStore, pool, err := service.InitializeStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via history cleanup).")
	}
	return taskStore, cleanup, nil
}

type historyOptions struct {
	limit     int
	pruneDays int
	asJSON    bool
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var opts historyOptions

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently finished tasks",
		Long: `Lists the most recent tasks from the task store, newest first. With
--prune-days, tasks that finished more than that many days ago are deleted first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg, opts, provider, cmd.OutOrStdout(), time.Now())
		},
	}

	historyCmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Number of tasks to show")
	historyCmd.Flags().IntVar(&opts.pruneDays, "prune-days", 0, "Delete tasks older than this many days before listing")
	historyCmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the tasks as JSON")
	return historyCmd
}

// runHistory contains the core, testable logic of the history command.
func runHistory(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	opts historyOptions,
	provider storeProvider,
	out io.Writer,
	now time.Time,
) error {
	taskStore, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if opts.pruneDays > 0 {
		cutoff := now.AddDate(0, 0, -opts.pruneDays)
		deleted, err := taskStore.PruneBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		logger.Info("Pruned task history", zap.Int64("deleted", deleted), zap.Int("days", opts.pruneDays))
		fmt.Fprintf(out, "Pruned %d task(s) older than %d day(s).\n", deleted, opts.pruneDays)
	}

	records, err := taskStore.RecentTasks(ctx, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if opts.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No tasks recorded yet.")
		return err
	}
	for _, r := range records {
		fmt.Fprintf(out, "%s  %-16s %3d steps  %8s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.State, r.Steps, r.Elapsed.Round(time.Second), r.Goal)
		if r.Summary != "" {
			fmt.Fprintf(out, "    %s\n", r.Summary)
		}
	}
	return nil
}
