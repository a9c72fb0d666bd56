package crew

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/model"
)

const (
	// DefaultMaxMemory bounds an agent's rolling memory.
	DefaultMaxMemory = 5
	// MemoryCategory is the memory-logger category agent results go under.
	MemoryCategory = "crew"
)

// ModelManager runs named models. DefaultName is the model used when an
// agent names none.
type ModelManager interface {
	HasModel(name string) bool
	DefaultName() string
	Run(ctx context.Context, name, prompt string) (string, error)
}

// MemoryLogger records agent results. Failures are logged and ignored.
type MemoryLogger interface {
	Add(ctx context.Context, category, key, value string) error
}

// MemoryEntry is one line of agent or crew memory.
type MemoryEntry struct {
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Agent is a role bound to a generation capability.
type Agent struct {
	ID        string
	Role      string
	Goal      string
	Backstory string
	Tools     []*Tool
	Verbose   bool
	MaxMemory int

	generator model.Generator
	models    ModelManager
	modelName string
	memoryLog MemoryLogger
	memory    []MemoryEntry
	logger    *zap.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithBackstory overrides the default backstory.
func WithBackstory(s string) AgentOption {
	return func(a *Agent) {
		if s != "" {
			a.Backstory = s
		}
	}
}

// WithTools sets the tools listed in the agent's prompt.
func WithTools(tools ...*Tool) AgentOption {
	return func(a *Agent) { a.Tools = append(a.Tools, tools...) }
}

// WithGenerator binds a generator used when no model manager can serve.
func WithGenerator(g model.Generator) AgentOption {
	return func(a *Agent) { a.generator = g }
}

// WithModels binds a model manager. An empty name follows the manager's
// default model.
func WithModels(m ModelManager, name string) AgentOption {
	return func(a *Agent) {
		a.models = m
		a.modelName = name
	}
}

// WithMemoryLogger forwards model-manager results to a memory store.
func WithMemoryLogger(m MemoryLogger) AgentOption {
	return func(a *Agent) { a.memoryLog = m }
}

// WithMaxMemory changes the rolling memory bound.
func WithMaxMemory(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.MaxMemory = n
		}
	}
}

// WithVerboseAgent logs each execution at Info.
func WithVerboseAgent(v bool) AgentOption {
	return func(a *Agent) { a.Verbose = v }
}

// NewAgent creates an agent.
func NewAgent(role, goal string, logger *zap.Logger, opts ...AgentOption) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		ID:        uuid.New().String(),
		Role:      role,
		Goal:      goal,
		Backstory: fmt.Sprintf("You are an AI agent with the role of %s.", role),
		MaxMemory: DefaultMaxMemory,
		logger:    logger.With(zap.String("agent", role)),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// RecordCompletion appends to the rolling memory, dropping the oldest
// entries past MaxMemory.
func (a *Agent) RecordCompletion(text string) {
	a.memory = append(a.memory, MemoryEntry{Content: text, At: time.Now()})
	limit := a.MaxMemory
	if limit <= 0 {
		limit = DefaultMaxMemory
	}
	if over := len(a.memory) - limit; over > 0 {
		a.memory = append([]MemoryEntry(nil), a.memory[over:]...)
	}
}

// Memory returns the rolling memory, oldest first.
func (a *Agent) Memory() []MemoryEntry {
	return append([]MemoryEntry(nil), a.memory...)
}

// BuildPrompt renders the agent's prompt for a task. The output depends only
// on the agent's fields, memory and the arguments.
func (a *Agent) BuildPrompt(description string, context []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", a.Role)
	fmt.Fprintf(&b, "Your goal: %s\n", a.Goal)
	fmt.Fprintf(&b, "%s\n\n", a.Backstory)
	fmt.Fprintf(&b, "Task: %s\n", description)

	if len(context) > 0 {
		b.WriteString("\nContext:\n")
		b.WriteString(strings.Join(context, "\n"))
		b.WriteString("\n")
	}

	if len(a.memory) > 0 {
		b.WriteString("\nRecent memory:\n")
		for i := len(a.memory) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "- %s\n", a.memory[i].Content)
		}
	}

	if len(a.Tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, t := range a.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}

	b.WriteString("\nPlease complete the task based on your role and goal. Be thorough and creative.")
	return b.String()
}

// Execute produces a response for item. It tries the model manager, then
// the bound generator, and finally returns a labelled simulated response.
// Only a bound generator failure is returned as an error.
func (a *Agent) Execute(ctx context.Context, item *WorkItem) (string, error) {
	if a.Verbose {
		a.logger.Info("agent executing task", zap.String("task", item.Description))
	}
	prompt := a.BuildPrompt(item.Description, item.Context)

	if name, ok := a.managedModel(); ok {
		resp, err := a.models.Run(ctx, name, prompt)
		if err == nil {
			a.logResult(ctx, item.ID, resp)
			a.RecordCompletion("Completed task: " + item.Description)
			if a.Verbose {
				a.logger.Info("agent completed task using model manager", zap.String("model", name))
			}
			return resp, nil
		}
		a.logger.Error("model manager failed", zap.String("model", name), zap.Error(err))
	}

	if a.generator != nil {
		resp, err := a.generator.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("agent %s generate: %w", a.Role, err)
		}
		a.RecordCompletion("Completed task: " + item.Description)
		if a.Verbose {
			a.logger.Info("agent completed task", zap.String("task", item.Description))
		}
		return resp, nil
	}

	return fmt.Sprintf("[Agent %s has no model assigned. Using simulated response for task: %s]", a.Role, item.Description), nil
}

// managedModel resolves the model the manager should run, falling back to
// the manager's default when the agent names none.
func (a *Agent) managedModel() (string, bool) {
	if a.models == nil {
		return "", false
	}
	name := a.modelName
	if name == "" {
		name = a.models.DefaultName()
	}
	if name == "" || !a.models.HasModel(name) {
		return "", false
	}
	return name, true
}

func (a *Agent) logResult(ctx context.Context, itemID, resp string) {
	if a.memoryLog == nil {
		return
	}
	if err := a.memoryLog.Add(ctx, MemoryCategory, "task_result_"+itemID, resp); err != nil {
		a.logger.Warn("record task result failed", zap.String("item", itemID), zap.Error(err))
	}
}
