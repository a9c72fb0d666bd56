package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/droid/internal/config"
)

var (
	configPath string
	jsonLogs   bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "droid",
	Short: "Social media task scheduler and agent crews",
	Long: `Droid schedules social media tasks (posting, influencer interaction,
comment replies, content generation) on a priority queue and runs crews of
role-playing agents that share context through one model manager.

Run "droid serve" for the HTTP API and background worker, or use "droid task"
and "droid crew" to execute a single task or crew from the command line.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON; defaults to $CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(crewCmd)
}

// loadConfig reads --config, then $CONFIG_PATH, and falls back to defaults
// when neither is set.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string, jsonOut bool) (*zap.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var cfg zap.Config
	if jsonOut {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
