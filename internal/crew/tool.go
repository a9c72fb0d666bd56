package crew

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ToolFunc executes a tool with free-form input.
type ToolFunc func(ctx context.Context, input string) (string, error)

// Tool is a named capability listed in an agent's prompt.
type Tool struct {
	Name        string
	Description string
	Func        ToolFunc
}

// NewTool creates a tool.
func NewTool(name, description string, fn ToolFunc) *Tool {
	return &Tool{Name: name, Description: description, Func: fn}
}

// Run invokes the tool and logs its duration.
func (t *Tool) Run(ctx context.Context, input string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if t.Func == nil {
		return "", fmt.Errorf("tool %s has no implementation", t.Name)
	}
	logger.Info("running tool", zap.String("tool", t.Name))
	start := time.Now()

	out, err := t.Func(ctx, input)
	if err != nil {
		logger.Error("tool failed", zap.String("tool", t.Name), zap.Error(err))
		return "", fmt.Errorf("tool %s: %w", t.Name, err)
	}
	logger.Info("tool completed", zap.String("tool", t.Name), zap.Duration("duration", time.Since(start)))
	return out, nil
}
