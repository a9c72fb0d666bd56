package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler runs tasks inline while idle, or queues them for a single
// background worker once started.
type Scheduler struct {
	registry        *Registry
	env             Env
	defaultPriority int
	pollInterval    time.Duration
	notifier        Notifier
	observer        Observer
	logger          *zap.Logger

	mu     sync.Mutex
	queue  taskQueue
	byID   map[string]*ScheduledTask
	seq    uint64
	worker *worker
	wake   chan struct{}
}

type worker struct {
	stop      chan struct{}
	done      chan struct{}
	abandoned []*ScheduledTask
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDefaultPriority sets the priority used when Submit gets none.
func WithDefaultPriority(p int) Option {
	return func(s *Scheduler) { s.defaultPriority = p }
}

// WithPollInterval bounds how long the idle worker waits before re-checking.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithNotifier publishes task lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithObserver reports queue and task measurements.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// NewScheduler creates a stopped scheduler bound to a registry and the
// collaborators passed to every handler.
func NewScheduler(reg *Registry, env Env, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		registry:        reg,
		env:             env,
		defaultPriority: DefaultPriority,
		pollInterval:    time.Second,
		byID:            make(map[string]*ScheduledTask),
		wake:            make(chan struct{}, 1),
		logger:          logger.With(zap.String("component", "scheduler")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type submitOptions struct {
	priority int
	callback func(Result)
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithPriority sets the task priority. Lower values run first.
func WithPriority(p int) SubmitOption {
	return func(o *submitOptions) { o.priority = p }
}

// WithCallback registers fn to receive the task result.
func WithCallback(fn func(Result)) SubmitOption {
	return func(o *submitOptions) { o.callback = fn }
}

// Submit executes the named task. When the worker is not running the task
// runs on the caller's goroutine and its result is returned. Otherwise the
// task is queued and a pending Result carrying its ID is returned; the
// outcome is delivered only to the callback.
func (s *Scheduler) Submit(ctx context.Context, name string, params map[string]any, opts ...SubmitOption) (Result, error) {
	o := submitOptions{priority: s.defaultPriority}
	for _, fn := range opts {
		fn(&o)
	}

	h, ok := s.registry.Resolve(name)
	if !ok {
		s.logger.Error("unknown task", zap.String("task", name))
		err := fmt.Errorf("%w: %s", ErrUnknownTaskType, name)
		return Result{Name: name, Status: TaskFailed, Err: err, Error: err.Error()}, err
	}
	if s.observer != nil {
		s.observer.TaskSubmitted(name)
	}

	s.mu.Lock()
	if s.worker == nil {
		s.mu.Unlock()
		return s.runInline(ctx, name, h, params, o.callback)
	}

	s.seq++
	t := &ScheduledTask{
		ID:          uuid.New().String(),
		Name:        name,
		Priority:    o.priority,
		Params:      copyParams(params),
		SubmittedAt: time.Now(),
		Status:      TaskPending,
		seq:         s.seq,
		callback:    o.callback,
	}
	s.queue.push(t)
	s.byID[t.ID] = t
	depth := s.queue.Len()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	if s.observer != nil {
		s.observer.QueueDepth(depth)
	}
	s.logger.Info("scheduled task",
		zap.String("task", name),
		zap.String("id", t.ID),
		zap.Int("priority", t.Priority))
	s.publish(ctx, t.ID, name, TaskPending, "")

	return Result{TaskID: t.ID, Name: name, Status: TaskPending}, nil
}

func (s *Scheduler) runInline(ctx context.Context, name string, h Handler, params map[string]any, cb func(Result)) (Result, error) {
	id := uuid.New().String()
	s.logger.Info("executing task immediately", zap.String("task", name), zap.String("id", id))

	res := s.invoke(ctx, id, name, h, copyParams(params))
	s.finish(ctx, res, cb)
	if res.Err != nil {
		return res, fmt.Errorf("task %s: %w", name, res.Err)
	}
	return res, nil
}

// Start launches the background worker. Calling Start while running only
// logs a warning. Handlers run with ctx; cancelling it stops the worker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.worker != nil {
		s.mu.Unlock()
		s.logger.Warn("scheduler is already running")
		return
	}
	w := &worker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.worker = w
	s.mu.Unlock()

	go s.loop(ctx, w)
	s.logger.Info("scheduler started")
}

// Stop signals the worker and waits up to timeout for it to exit. Queued
// tasks are abandoned and reported to their callbacks as cancelled. A task
// already executing is not interrupted.
func (s *Scheduler) Stop(timeout time.Duration) error {
	w := s.detach(nil)
	if w == nil {
		s.logger.Warn("scheduler is not running")
		return nil
	}
	close(w.stop)

	select {
	case <-w.done:
		s.logger.Info("scheduler stopped", zap.Int("abandoned", len(w.abandoned)))
		return nil
	case <-time.After(timeout):
		s.logger.Warn("scheduler worker still busy after stop timeout", zap.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}

// detach unbinds the current worker, or only that worker when only is
// non-nil, and hands it the queued tasks.
func (s *Scheduler) detach(only *worker) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.worker
	if w == nil || (only != nil && w != only) {
		return nil
	}
	s.worker = nil
	for t := s.queue.pop(); t != nil; t = s.queue.pop() {
		w.abandoned = append(w.abandoned, t)
	}
	s.byID = make(map[string]*ScheduledTask)
	if s.observer != nil {
		s.observer.QueueDepth(0)
	}
	return w
}

// Cancel marks a queued task as cancelled. It reports false when the task is
// unknown or already dequeued.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.Status != TaskPending {
		return false
	}
	t.Status = TaskCancelled
	s.logger.Info("cancelled task", zap.String("task", t.Name), zap.String("id", id))
	return true
}

// IsRunning reports whether the background worker is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker != nil
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) loop(ctx context.Context, w *worker) {
	defer close(w.done)

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			s.detach(w)
			s.abandon(ctx, w)
			return
		}
		t, attached := s.next(w)
		if !attached {
			s.abandon(ctx, w)
			return
		}
		if t != nil {
			s.process(ctx, t)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.pollInterval)

		select {
		case <-w.stop:
			s.abandon(ctx, w)
			return
		case <-ctx.Done():
			s.detach(w)
			s.abandon(ctx, w)
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// next pops the highest-priority task. attached is false once w has been
// detached by Stop.
func (s *Scheduler) next(w *worker) (t *ScheduledTask, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != w {
		return nil, false
	}
	t = s.queue.pop()
	if t == nil {
		return nil, true
	}
	delete(s.byID, t.ID)
	if s.observer != nil {
		s.observer.QueueDepth(s.queue.Len())
	}
	return t, true
}

func (s *Scheduler) process(ctx context.Context, t *ScheduledTask) {
	if t.Status == TaskCancelled {
		s.finish(ctx, Result{TaskID: t.ID, Name: t.Name, Status: TaskCancelled}, t.callback)
		return
	}

	t.Status = TaskRunning
	s.logger.Info("processing task",
		zap.String("task", t.Name),
		zap.String("id", t.ID),
		zap.Int("priority", t.Priority))
	s.publish(ctx, t.ID, t.Name, TaskRunning, "")

	h, ok := s.registry.Resolve(t.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTaskType, t.Name)
		t.Status = TaskFailed
		s.finish(ctx, Result{TaskID: t.ID, Name: t.Name, Status: TaskFailed, Err: err, Error: err.Error()}, t.callback)
		return
	}

	res := s.invoke(ctx, t.ID, t.Name, h, copyParams(t.Params))
	t.Status = res.Status
	s.finish(ctx, res, t.callback)
}

func (s *Scheduler) abandon(ctx context.Context, w *worker) {
	for _, t := range w.abandoned {
		t.Status = TaskCancelled
		s.finish(ctx, Result{TaskID: t.ID, Name: t.Name, Status: TaskCancelled}, t.callback)
	}
}

// invoke runs a handler and converts errors and panics into a failed Result.
func (s *Scheduler) invoke(ctx context.Context, id, name string, h Handler, params map[string]any) (res Result) {
	start := time.Now()
	res = Result{TaskID: id, Name: name}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("handler panic: %v", r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Status = TaskFailed
			res.Error = res.Err.Error()
			res.Value = nil
			s.logger.Error("error executing task",
				zap.String("task", name),
				zap.String("id", id),
				zap.Error(res.Err))
			return
		}
		res.Status = TaskCompleted
	}()

	res.Value, res.Err = h(ctx, params, s.env)
	return res
}

func (s *Scheduler) finish(ctx context.Context, res Result, cb func(Result)) {
	if s.observer != nil && res.Status != TaskPending {
		s.observer.TaskFinished(res.Name, res.Status, res.Duration)
	}
	s.publish(ctx, res.TaskID, res.Name, res.Status, res.Error)
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task callback panicked",
				zap.String("task", res.Name),
				zap.Any("panic", r))
		}
	}()
	cb(res)
}

func (s *Scheduler) publish(ctx context.Context, id, name string, status TaskStatus, errText string) {
	if s.notifier == nil {
		return
	}
	ev := &TaskEvent{
		TaskID:    id,
		Name:      name,
		Status:    status,
		Error:     errText,
		Timestamp: time.Now(),
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("publish task event failed", zap.String("task", name), zap.Error(err))
	}
}
