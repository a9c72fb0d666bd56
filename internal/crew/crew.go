package crew

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Process selects how a crew sequences its work items.
type Process string

const (
	// ProcessSequential feeds every earlier result into each later item.
	ProcessSequential Process = "sequential"
	// ProcessHierarchical runs the first item as coordinator and hands its
	// result to every other item.
	ProcessHierarchical Process = "hierarchical"
)

// ErrCrewAlreadyRun is returned by a second Run on the same crew.
var ErrCrewAlreadyRun = errors.New("crew has already run")

// Observer receives per-item measurements. metrics.Collector implements it.
type Observer interface {
	WorkItemFinished(role string, status Status, d time.Duration)
}

// Crew runs an ordered list of work items across their agents.
type Crew struct {
	ID      string
	Agents  []*Agent
	Items   []*WorkItem
	Process Process
	Status  Status

	memoryEnabled bool
	verbose       bool
	memory        []MemoryEntry
	results       map[string]string
	observer      Observer
	logger        *zap.Logger
}

// Option configures a Crew.
type Option func(*Crew)

// WithProcess selects the process mode. Sequential by default.
func WithProcess(p Process) Option {
	return func(c *Crew) { c.Process = p }
}

// WithMemory toggles the run-memory log. Enabled by default.
func WithMemory(enabled bool) Option {
	return func(c *Crew) { c.memoryEnabled = enabled }
}

// WithVerbose logs each step at Info. Enabled by default.
func WithVerbose(v bool) Option {
	return func(c *Crew) { c.verbose = v }
}

// WithLogger sets the crew logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crew) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver reports every finished work item.
func WithObserver(o Observer) Option {
	return func(c *Crew) { c.observer = o }
}

// New creates a crew over items. Agents are collected from the items in
// first-reference order.
func New(items []*WorkItem, opts ...Option) *Crew {
	c := &Crew{
		ID:            uuid.New().String(),
		Items:         items,
		Process:       ProcessSequential,
		Status:        StatusPending,
		memoryEnabled: true,
		verbose:       true,
		results:       make(map[string]string),
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(zap.String("crew", c.ID))

	seen := make(map[*Agent]bool)
	roles := make(map[string]*Agent)
	for _, it := range items {
		if it.Agent == nil || seen[it.Agent] {
			continue
		}
		seen[it.Agent] = true
		c.Agents = append(c.Agents, it.Agent)

		if _, dup := roles[it.Agent.Role]; dup {
			c.logger.Warn("agents share a role, results will overwrite each other",
				zap.String("role", it.Agent.Role))
		}
		roles[it.Agent.Role] = it.Agent
	}
	return c
}

// Run executes every work item once and returns results keyed by agent role.
// Item failures do not stop the run; inspect each item's Status. Cancelling
// ctx stops before the next item and returns the partial results.
func (c *Crew) Run(ctx context.Context, inputs map[string]any) (map[string]string, error) {
	if c.Status != StatusPending {
		return nil, ErrCrewAlreadyRun
	}
	c.Status = StatusInProgress

	if len(inputs) > 0 {
		lines := inputLines(inputs)
		for _, it := range c.Items {
			it.Context = append(it.Context, lines...)
		}
	}

	if c.verbose {
		c.logger.Info("starting crew execution",
			zap.Int("items", len(c.Items)),
			zap.String("process", string(c.Process)))
	}

	var err error
	switch c.Process {
	case ProcessSequential:
		err = c.runSequential(ctx)
	case ProcessHierarchical:
		err = c.runHierarchical(ctx)
	default:
		c.logger.Warn("unknown crew process, running items independently without context chaining",
			zap.String("process", string(c.Process)))
		err = c.runIndependent(ctx, c.Items, "Task completed by")
	}
	if err != nil {
		c.Status = StatusFailed
		return c.Results(), fmt.Errorf("crew %s: %w", c.ID, err)
	}

	c.Status = StatusCompleted
	if c.verbose {
		c.logger.Info("crew execution completed")
	}
	return c.Results(), nil
}

func (c *Crew) runSequential(ctx context.Context) error {
	for i, it := range c.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, prev := range c.Items[:i] {
			if prev.Result != "" {
				it.Context = append(it.Context, fmt.Sprintf("Result from %s: %s", roleOf(prev), prev.Result))
			}
		}
		if c.verbose {
			c.logger.Info("executing task",
				zap.Int("step", i+1),
				zap.Int("of", len(c.Items)),
				zap.String("task", it.Description))
		}
		c.execute(ctx, it, "Task completed by")
	}
	return nil
}

func (c *Crew) runHierarchical(ctx context.Context) error {
	if len(c.Items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	coordinator := c.Items[0]
	if c.verbose {
		c.logger.Info("executing manager task", zap.String("task", coordinator.Description))
	}
	instructions := c.execute(ctx, coordinator, "Manager task completed by")

	rest := c.Items[1:]
	for _, it := range rest {
		it.Context = append(it.Context, "Manager instructions: "+instructions)
	}
	return c.runIndependent(ctx, rest, "Task completed by")
}

func (c *Crew) runIndependent(ctx context.Context, items []*WorkItem, narrative string) error {
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.verbose {
			c.logger.Info("executing task", zap.String("task", it.Description))
		}
		c.execute(ctx, it, narrative)
	}
	return nil
}

func (c *Crew) execute(ctx context.Context, it *WorkItem, narrative string) string {
	start := time.Now()
	res := it.Execute(ctx)
	role := roleOf(it)
	c.results[role] = res
	c.addMemory(fmt.Sprintf("%s %s: %s", narrative, role, it.Description))

	if it.Status == StatusFailed {
		c.logger.Warn("work item failed", zap.String("agent", role), zap.String("result", res))
	}
	if c.observer != nil {
		c.observer.WorkItemFinished(role, it.Status, time.Since(start))
	}
	return res
}

func (c *Crew) addMemory(content string) {
	if !c.memoryEnabled {
		return
	}
	c.memory = append(c.memory, MemoryEntry{Content: content, At: time.Now()})
}

// Memory returns the run-memory log in order.
func (c *Crew) Memory() []MemoryEntry {
	return append([]MemoryEntry(nil), c.memory...)
}

// Results returns a copy of the per-role results.
func (c *Crew) Results() map[string]string {
	out := make(map[string]string, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

func roleOf(it *WorkItem) string {
	if it.Agent == nil {
		return "unassigned"
	}
	return it.Agent.Role
}

func inputLines(inputs map[string]any) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, inputs[k]))
	}
	return lines
}
