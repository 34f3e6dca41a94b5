// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/config"
	"github.com/xkilldash9x/cherry/internal/observability"
	"github.com/xkilldash9x/cherry/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// envFile is loaded, when present, before viper reads the environment.
var envFile = ".env"

// NewRootCommand builds a fresh command tree. Each call returns an
// independent instance, so flags never leak between executions.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cherry",
		Short:   "Cherry is a desktop AI agent that sees the screen and acts on it.",
		Version: Version,
		// Errors are logged by Execute.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			// 1. Initialize configuration loading
			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "cherry"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Create and validate the configuration object.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "cherry"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Initialize the logger with the loaded config.
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting Cherry", zap.String("version", Version))

			// 4. Hand the config to subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(service.NewComponentFactory()))
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newHistoryCmd(NewStoreProvider()))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with the given arguments.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the .env file, the config file and CHERRY_* environment variables.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", envFile, err)
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHERRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// getConfigFromContext returns the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if ctx == nil {
		return nil, errors.New("command context is nil")
	}
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
