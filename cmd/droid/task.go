package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/orchestrator"
)

var (
	taskParams     []string
	taskParamsJSON string
	taskPriority   int
)

var taskCmd = &cobra.Command{
	Use:   "task <name>",
	Short: "Execute one task immediately and print its result",
	Long: `Execute a registered task on the current goroutine and print the
result as JSON. Parameters are given as repeated --param key=value flags or
a JSON object with --params.

Example:
  droid task post_content --param platform=twitter --param content="hello"`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().StringArrayVar(&taskParams, "param", nil, "task parameter as key=value (repeatable)")
	taskCmd.Flags().StringVar(&taskParamsJSON, "params", "", "task parameters as a JSON object")
	taskCmd.Flags().IntVar(&taskPriority, "priority", 0, "task priority, lower runs first (defaults to scheduler.default_priority)")
}

func runTask(cmd *cobra.Command, args []string) error {
	params, err := parseParams(taskParamsJSON, taskParams)
	if err != nil {
		return err
	}
	return withApp(cmd, func(a *app) error {
		var opts []orchestrator.SubmitOption
		if cmd.Flags().Changed("priority") {
			opts = append(opts, orchestrator.WithPriority(taskPriority))
		}
		res, err := a.sched.Submit(cmd.Context(), args[0], params, opts...)
		printResult(res)
		return err
	})
}

// withApp loads configuration, wires the app and closes it after fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Server.LogLevel, jsonLogs)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()
	return fn(a)
}

// parseParams merges a JSON object with key=value pairs; pairs win.
func parseParams(raw string, pairs []string) (map[string]any, error) {
	params := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("parse --params: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", p)
		}
		params[k] = v
	}
	return params, nil
}

func printResult(res orchestrator.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
}
