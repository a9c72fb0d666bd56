package orchestrator

import (
	"context"
	"errors"
	"time"
)

// TaskStatus tracks execution state of a scheduled task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// DefaultPriority is used when a submission does not specify one.
const DefaultPriority = 5

var (
	// ErrUnknownTaskType is returned when no handler is registered for a name.
	ErrUnknownTaskType = errors.New("unknown task type")
	// ErrStopTimeout is returned when the worker does not exit in time.
	ErrStopTimeout = errors.New("scheduler worker did not stop in time")
)

// ModuleSet is the handle to loaded modules passed to every handler.
type ModuleSet interface {
	Lookup(name string) (any, bool)
}

// ModelManager resolves named generation capabilities.
type ModelManager interface {
	HasModel(name string) bool
	DefaultName() string
	Run(ctx context.Context, name, prompt string) (string, error)
}

// MemoryLogger records entries under a category. Optional for correctness.
type MemoryLogger interface {
	Add(ctx context.Context, category, key, value string) error
}

// Env bundles the collaborator handles a handler may use. Any field may be nil.
type Env struct {
	Modules ModuleSet
	Models  ModelManager
	Memory  MemoryLogger
}

// Handler executes one task type. params is a private copy.
type Handler func(ctx context.Context, params map[string]any, env Env) (any, error)

// ScheduledTask is a queued unit of work.
type ScheduledTask struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Priority    int            `json:"priority"`
	Params      map[string]any `json:"params"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Status      TaskStatus     `json:"status"`

	seq      uint64
	index    int
	callback func(Result)
}

// Result is the outcome of a task, delivered to callbacks and returned by
// inline submissions.
type Result struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	Status   TaskStatus    `json:"status"`
	Value    any           `json:"value,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Notifier receives task lifecycle events. MessageBus implements it.
type Notifier interface {
	Publish(ctx context.Context, ev *TaskEvent) error
}

// Observer receives scheduler measurements. metrics.Collector implements it.
type Observer interface {
	TaskSubmitted(name string)
	TaskFinished(name string, status TaskStatus, d time.Duration)
	QueueDepth(n int)
}

// TaskEvent is published when a task changes state.
type TaskEvent struct {
	TaskID    string     `json:"task_id"`
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
