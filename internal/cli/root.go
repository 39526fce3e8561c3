package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Overlord/pkg/config"
	applogger "Overlord/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	appConfig *config.Config
	appLogger *applogger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "overlord",
	Short:         "Bitcoin Overlord dashboards, feed API and simulator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return setup(cmd)
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which stops every running component.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	path := cfgFile
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		// the default path is optional; defaults plus environment still apply
		path = ""
	}

	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return err
	}

	appConfig = cfg
	appLogger = l
	l.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.String("config", path),
	)
	return nil
}
