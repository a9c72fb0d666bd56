package crew

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a work item or crew.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var errNoAgent = errors.New("no agent assigned")

// WorkItem is one unit of crew work executed by its agent.
type WorkItem struct {
	ID             string
	Description    string
	Agent          *Agent
	ExpectedOutput string
	Context        []string
	Status         Status
	Result         string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	Callback       func(*WorkItem)
}

// NewWorkItem creates a pending work item.
func NewWorkItem(description string, agent *Agent, context ...string) *WorkItem {
	return &WorkItem{
		ID:          uuid.New().String(),
		Description: description,
		Agent:       agent,
		Context:     append([]string(nil), context...),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// Execute runs the item once and returns its result. Agent errors and panics
// mark the item failed with an "Error: " result. A finished item returns its
// stored result.
func (w *WorkItem) Execute(ctx context.Context) string {
	if w.Status == StatusCompleted || w.Status == StatusFailed {
		return w.Result
	}
	w.Status = StatusInProgress

	res, err := w.run(ctx)
	now := time.Now()
	w.CompletedAt = &now
	if err != nil {
		w.Status = StatusFailed
		w.Result = "Error: " + err.Error()
	} else {
		w.Status = StatusCompleted
		w.Result = res
	}
	w.notify()
	return w.Result
}

func (w *WorkItem) run(ctx context.Context) (res string, err error) {
	if w.Agent == nil {
		return "", errNoAgent
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return w.Agent.Execute(ctx, w)
}

func (w *WorkItem) notify() {
	if w.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && w.Agent != nil {
			w.Agent.logger.Error("work item callback panicked",
				zap.String("item", w.ID), zap.Any("panic", r))
		}
	}()
	w.Callback(w)
}
